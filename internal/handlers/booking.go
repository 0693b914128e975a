package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/tanvir-rahman/doctorsportal/internal/booking"
	"github.com/tanvir-rahman/doctorsportal/internal/model"
	"github.com/tanvir-rahman/doctorsportal/internal/payments"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type bookingResponse struct {
	ID              string `json:"id"`
	PatientName     string `json:"patient_name"`
	PatientEmail    string `json:"patient_email"`
	Treatment       string `json:"treatment"`
	AppointmentDate string `json:"appointment_date"`
	Slot            string `json:"slot"`
	Status          string `json:"status"`
	Paid            bool   `json:"paid"`
	TransactionID   string `json:"transaction_id,omitempty"`
}

func toBookingResponse(b model.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		PatientName:     b.PatientName,
		PatientEmail:    b.PatientEmail,
		Treatment:       b.Treatment,
		AppointmentDate: b.AppointmentDate.Format(time.DateOnly),
		Slot:            b.Slot,
		Status:          b.Status,
		Paid:            b.Paid,
		TransactionID:   b.TransactionID,
	}
}

// AppointmentOptions serves the per-date availability: every treatment with
// the slots still open on the requested day.
func (h *BookingHandler) AppointmentOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rawDate := strings.TrimSpace(r.URL.Query().Get("date"))
	if rawDate == "" {
		http.Error(w, "date query parameter required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation(time.DateOnly, rawDate, time.UTC)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	options, err := h.svc.Availability(r.Context(), date)
	if err != nil {
		h.logger.Error("availability query failed", "err", err, "date", rawDate)
		http.Error(w, "failed to compute availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

type createBookingRequest struct {
	PatientName     string `json:"patient_name"`
	Treatment       string `json:"treatment"`
	AppointmentDate string `json:"appointment_date"`
	Slot            string `json:"slot"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Treatment = strings.TrimSpace(req.Treatment)
	req.Slot = strings.TrimSpace(req.Slot)
	if req.Treatment == "" || req.Slot == "" || strings.TrimSpace(req.AppointmentDate) == "" {
		http.Error(w, "treatment, appointment_date and slot required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(req.AppointmentDate), time.UTC)
	if err != nil {
		http.Error(w, "invalid appointment_date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	b, err := h.svc.CreateBooking(r.Context(), booking.CreateRequest{
		PatientName:     req.PatientName,
		PatientEmail:    p.Email,
		Treatment:       req.Treatment,
		AppointmentDate: date,
		Slot:            req.Slot,
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		email = p.Email
	}

	list, err := h.svc.BookingsFor(r.Context(), email, p)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	out := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id query parameter required", http.StatusBadRequest)
		return
	}

	b, err := h.svc.GetBooking(r.Context(), id, p)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

type cancelRequest struct {
	BookingID string `json:"booking_id"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	if err := h.svc.CancelBooking(r.Context(), req.BookingID, p); err != nil {
		h.writeBookingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentIntentRequest struct {
	BookingID string `json:"booking_id"`
}

type paymentIntentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
}

func (h *BookingHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req paymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	intent, err := h.svc.CreatePaymentIntent(r.Context(), req.BookingID, p)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentIntentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.AmountCents,
	})
}

type confirmPaymentRequest struct {
	BookingID string `json:"booking_id"`
	IntentID  string `json:"intent_id"`
}

func (h *BookingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.IntentID = strings.TrimSpace(req.IntentID)
	if req.BookingID == "" || req.IntentID == "" {
		http.Error(w, "booking_id and intent_id required", http.StatusBadRequest)
		return
	}

	b, err := h.svc.ConfirmPayment(r.Context(), req.BookingID, req.IntentID, p)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// writeBookingError maps the engine's typed errors onto HTTP statuses.
func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error) {
	var dup *booking.DuplicateError
	var stripeErr *stripe.Error
	switch {
	case errors.Is(err, booking.ErrUnauthenticated):
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	case errors.Is(err, booking.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, booking.ErrTreatmentNotFound):
		http.Error(w, "unknown treatment", http.StatusNotFound)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "booking not found", http.StatusNotFound)
	case errors.As(err, &dup):
		http.Error(w, dup.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrSlotUnavailable):
		http.Error(w, "slot is no longer available", http.StatusConflict)
	case errors.Is(err, booking.ErrAlreadyPaid):
		http.Error(w, "booking is already paid", http.StatusConflict)
	case errors.Is(err, booking.ErrPaymentNotSettled):
		http.Error(w, "payment has not settled", http.StatusPaymentRequired)
	case errors.Is(err, payments.ErrNotConfigured):
		http.Error(w, "payments are not configured", http.StatusNotImplemented)
	case errors.As(err, &stripeErr):
		h.logger.Error("payment provider error", "err", err)
		http.Error(w, "payment provider unavailable", http.StatusBadGateway)
	default:
		h.logger.Error("booking request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
