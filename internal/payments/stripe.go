package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/tanvir-rahman/doctorsportal/internal/booking"
)

var ErrNotConfigured = errors.New("stripe not configured (STRIPE_SECRET_KEY missing)")

// StripeGateway implements booking.PaymentGateway with Stripe payment
// intents. Settlement is always re-checked server-side: a client-supplied
// intent id is only believed after the intent is fetched and its status and
// metadata examined.
type StripeGateway struct {
	secretKey string
	currency  string
	logger    *slog.Logger
}

func NewStripeGateway(secretKey, currency string, logger *slog.Logger) *StripeGateway {
	currency = strings.TrimSpace(strings.ToLower(currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{
		secretKey: strings.TrimSpace(secretKey),
		currency:  currency,
		logger:    logger,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amountCents int64, metadata map[string]string) (booking.Intent, error) {
	if g.secretKey == "" {
		return booking.Intent{}, ErrNotConfigured
	}
	stripe.Key = g.secretKey

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountCents),
		Currency:           stripe.String(g.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		g.logger.Error("stripe payment intent create failed", "err", err)
		return booking.Intent{}, err
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) VerifyIntent(ctx context.Context, intentID string) (booking.Intent, error) {
	if g.secretKey == "" {
		return booking.Intent{}, ErrNotConfigured
	}
	stripe.Key = g.secretKey

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		g.logger.Error("stripe payment intent fetch failed", "err", err, "intent_id", intentID)
		return booking.Intent{}, err
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) booking.Intent {
	return booking.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Succeeded:    pi.Status == stripe.PaymentIntentStatusSucceeded,
		Metadata:     pi.Metadata,
	}
}
