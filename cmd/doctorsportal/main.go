package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tanvir-rahman/doctorsportal/internal/booking"
	"github.com/tanvir-rahman/doctorsportal/internal/handlers"
	"github.com/tanvir-rahman/doctorsportal/internal/outbox"
	"github.com/tanvir-rahman/doctorsportal/internal/payments"
	"github.com/tanvir-rahman/doctorsportal/internal/sessions"
	"github.com/tanvir-rahman/doctorsportal/internal/storage"
	"github.com/tanvir-rahman/doctorsportal/libs/config"
	"github.com/tanvir-rahman/doctorsportal/libs/db"
	"github.com/tanvir-rahman/doctorsportal/libs/httpx"
	"github.com/tanvir-rahman/doctorsportal/libs/kafkax"
	otelx "github.com/tanvir-rahman/doctorsportal/libs/otel"
	"github.com/tanvir-rahman/doctorsportal/libs/runtime"
)

func main() {
	serviceName := config.String("SERVICE_NAME", "doctorsportal")
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	port, err := config.Port("PORT", "8080")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	accessTTL := config.DurationMinutes("ACCESS_TTL_MINUTES", time.Hour)
	refreshTTL := config.DurationMinutes("REFRESH_TTL_MINUTES", 7*24*time.Hour)
	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	redisAddr := config.String("REDIS_ADDR", "")
	stripeKey := config.String("STRIPE_SECRET_KEY", "")
	stripeCurrency := config.String("STRIPE_CURRENCY", "usd")
	corsOrigins := config.String("CORS_ALLOWED_ORIGINS", "")
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	pool, err := db.Open(ctx, databaseURL)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	catalogRepo := storage.NewCatalogRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	userRepo := storage.NewUserRepository(pool)
	doctorRepo := storage.NewDoctorRepository(pool)
	refreshRepo := sessions.NewRefreshRepository(pool)

	gateway := payments.NewStripeGateway(stripeKey, stripeCurrency, logger)
	svc := booking.NewService(catalogRepo, bookingRepo, gateway, logger)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers: kafkaBrokers,
	})
	go publisher.Run(ctx)

	authHandler := handlers.NewAuthHandler(pool, userRepo, outboxRepo, refreshRepo, logger, jwtSecret, accessTTL, refreshTTL)
	bookingHandler := handlers.NewBookingHandler(svc, logger)
	userHandler := handlers.NewUserHandler(userRepo, logger)
	doctorHandler := handlers.NewDoctorHandler(doctorRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "postgres", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.HandleFunc("/api/v1/appointment-options", bookingHandler.AppointmentOptions)

	mux.HandleFunc("/api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authHandler.Logout)
	mux.Handle("/api/v1/auth/me", handlers.RequireAuth(jwtSecret, http.HandlerFunc(authHandler.Me)))

	mux.Handle("/api/v1/bookings", handlers.RequireAuth(jwtSecret, authAwareBookings(bookingHandler)))
	mux.Handle("/api/v1/bookings/get", handlers.RequireAuth(jwtSecret, http.HandlerFunc(bookingHandler.Get)))
	mux.Handle("/api/v1/bookings/cancel", handlers.RequireAuth(jwtSecret, http.HandlerFunc(bookingHandler.Cancel)))
	mux.Handle("/api/v1/payments/intent", handlers.RequireAuth(jwtSecret, http.HandlerFunc(bookingHandler.CreatePaymentIntent)))
	mux.Handle("/api/v1/payments/confirm", handlers.RequireAuth(jwtSecret, http.HandlerFunc(bookingHandler.ConfirmPayment)))

	mux.Handle("/api/v1/users", handlers.RequireAdmin(jwtSecret, http.HandlerFunc(userHandler.List)))
	mux.Handle("/api/v1/users/promote", handlers.RequireAdmin(jwtSecret, http.HandlerFunc(userHandler.Promote)))
	mux.Handle("/api/v1/doctors", handlers.RequireAdmin(jwtSecret, http.HandlerFunc(doctorHandler.Doctors)))
	mux.Handle("/api/v1/doctors/delete", handlers.RequireAdmin(jwtSecret, http.HandlerFunc(doctorHandler.Delete)))

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitOrigins(corsOrigins),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1 << 20),
	}
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, serviceName)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		limiter := httpx.NewRateLimiter(rateLimit, time.Minute)
		middlewares = append(middlewares, limiter.Middleware())
	}

	handler := otelhttp.NewHandler(httpx.Chain(mux, middlewares...), serviceName)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}

// authAwareBookings dispatches /api/v1/bookings: GET lists, POST creates.
func authAwareBookings(h *handlers.BookingHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
