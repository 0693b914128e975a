package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tanvir-rahman/doctorsportal/internal/availability"
	"github.com/tanvir-rahman/doctorsportal/internal/model"
)

// CatalogReader provides the immutable treatment catalog.
type CatalogReader interface {
	ListOptions(ctx context.Context) ([]model.AppointmentOption, error)
	GetOptionByName(ctx context.Context, name string) (model.AppointmentOption, error)
}

// Store persists bookings. Insert must return ErrSlotTaken or ErrDateTaken
// (possibly wrapped) when the corresponding uniqueness constraint is
// violated; SetPaid must return ErrAlreadyPaid when the booking is paid and
// ErrNotFound when it does not exist.
type Store interface {
	FindByDate(ctx context.Context, date time.Time) ([]model.Booking, error)
	FindByEmailAndDate(ctx context.Context, email string, date time.Time) ([]model.Booking, error)
	FindByEmail(ctx context.Context, email string) ([]model.Booking, error)
	GetByID(ctx context.Context, id string) (model.Booking, error)
	Insert(ctx context.Context, b model.Booking) (string, error)
	SetPaid(ctx context.Context, id, transactionID string) error
	Delete(ctx context.Context, id string) error
}

// PaymentGateway creates client-side payment handles and verifies settled
// transactions server-side. A transaction id supplied by a client is never
// trusted without VerifyIntent.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountCents int64, metadata map[string]string) (Intent, error)
	VerifyIntent(ctx context.Context, intentID string) (Intent, error)
}

type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Succeeded    bool
	Metadata     map[string]string
}

// Principal is the authenticated identity acting on a booking.
type Principal struct {
	Email string
	Role  string
}

func (p Principal) isAdmin() bool {
	return p.Role == model.RoleAdmin
}

type Service struct {
	catalog  CatalogReader
	store    Store
	payments PaymentGateway
	logger   *slog.Logger
}

func NewService(catalog CatalogReader, store Store, payments PaymentGateway, logger *slog.Logger) *Service {
	return &Service{
		catalog:  catalog,
		store:    store,
		payments: payments,
		logger:   logger,
	}
}

// Availability computes the remaining bookable slots per treatment for date.
func (s *Service) Availability(ctx context.Context, date time.Time) ([]availability.OptionView, error) {
	catalog, err := s.catalog.ListOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	booked, err := s.store.FindByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("find bookings: %w", err)
	}
	return availability.Compute(date, catalog, booked), nil
}

type CreateRequest struct {
	PatientName     string
	PatientEmail    string
	Treatment       string
	AppointmentDate time.Time
	Slot            string
}

// CreateBooking validates and persists a booking request. Preconditions are
// checked in order, first failure wins: authenticated patient, slot still in
// the treatment's remaining list, no other booking held by the patient on
// that date. The database unique constraints are the arbiter under
// concurrency; conflicts surfacing from the insert are translated to the
// same typed errors the pre-checks produce.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (model.Booking, error) {
	email := strings.TrimSpace(strings.ToLower(req.PatientEmail))
	if email == "" {
		return model.Booking{}, ErrUnauthenticated
	}

	opt, err := s.catalog.GetOptionByName(ctx, req.Treatment)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Booking{}, ErrTreatmentNotFound
		}
		return model.Booking{}, fmt.Errorf("load treatment: %w", err)
	}

	day := req.AppointmentDate.UTC().Truncate(24 * time.Hour)

	sameDay, err := s.store.FindByDate(ctx, day)
	if err != nil {
		return model.Booking{}, fmt.Errorf("find bookings: %w", err)
	}
	open := availability.RemainingSlots(day, opt, sameDay)
	if !contains(open, req.Slot) {
		return model.Booking{}, ErrSlotUnavailable
	}

	held, err := s.store.FindByEmailAndDate(ctx, email, day)
	if err != nil {
		return model.Booking{}, fmt.Errorf("conflict check: %w", err)
	}
	if len(held) > 0 {
		return model.Booking{}, &DuplicateError{Date: day}
	}

	b := model.Booking{
		PatientName:     strings.TrimSpace(req.PatientName),
		PatientEmail:    email,
		Treatment:       opt.Name,
		AppointmentDate: day,
		Slot:            req.Slot,
		Status:          model.StatusConfirmed,
	}
	id, err := s.store.Insert(ctx, b)
	if err != nil {
		// Lost a race after the pre-checks; the constraint decides.
		switch {
		case errors.Is(err, ErrSlotTaken):
			return model.Booking{}, ErrSlotUnavailable
		case errors.Is(err, ErrDateTaken):
			return model.Booking{}, &DuplicateError{Date: day}
		}
		return model.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	b.ID = id

	s.logger.Info("booking created",
		"booking_id", id,
		"treatment", b.Treatment,
		"date", day.Format(time.DateOnly),
		"slot", b.Slot,
	)
	return b, nil
}

// BookingsFor lists a patient's bookings. Admins may read any patient's.
func (s *Service) BookingsFor(ctx context.Context, email string, p Principal) ([]model.Booking, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !p.isAdmin() && !strings.EqualFold(p.Email, email) {
		return nil, ErrForbidden
	}
	return s.store.FindByEmail(ctx, email)
}

func (s *Service) GetBooking(ctx context.Context, id string, p Principal) (model.Booking, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if !p.isAdmin() && !strings.EqualFold(p.Email, b.PatientEmail) {
		return model.Booking{}, ErrForbidden
	}
	return b, nil
}

// CancelBooking deletes a booking. Allowed for the owning patient and for
// admins, from any state including paid.
func (s *Service) CancelBooking(ctx context.Context, id string, p Principal) error {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !p.isAdmin() && !strings.EqualFold(p.Email, b.PatientEmail) {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("booking cancelled", "booking_id", id, "by_admin", p.isAdmin())
	return nil
}

// CreatePaymentIntent opens a payment for an unpaid booking. The amount
// always comes from the catalog price, never from the client.
func (s *Service) CreatePaymentIntent(ctx context.Context, bookingID string, p Principal) (Intent, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return Intent{}, err
	}
	if !p.isAdmin() && !strings.EqualFold(p.Email, b.PatientEmail) {
		return Intent{}, ErrForbidden
	}
	if b.Paid {
		return Intent{}, ErrAlreadyPaid
	}

	opt, err := s.catalog.GetOptionByName(ctx, b.Treatment)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Intent{}, ErrTreatmentNotFound
		}
		return Intent{}, fmt.Errorf("load treatment: %w", err)
	}

	intent, err := s.payments.CreateIntent(ctx, opt.PriceCents, map[string]string{
		"booking_id": b.ID,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return intent, nil
}

// ConfirmPayment marks a booking paid after verifying the intent with the
// payment provider: it must have settled and must reference this booking.
// There is no transition back from paid.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID, intentID string, p Principal) (model.Booking, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if !p.isAdmin() && !strings.EqualFold(p.Email, b.PatientEmail) {
		return model.Booking{}, ErrForbidden
	}
	if b.Paid {
		return model.Booking{}, ErrAlreadyPaid
	}

	intent, err := s.payments.VerifyIntent(ctx, intentID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("verify payment intent: %w", err)
	}
	if !intent.Succeeded || intent.Metadata["booking_id"] != b.ID {
		return model.Booking{}, ErrPaymentNotSettled
	}

	if err := s.store.SetPaid(ctx, bookingID, intent.ID); err != nil {
		return model.Booking{}, err
	}

	b.Paid = true
	b.Status = model.StatusPaid
	b.TransactionID = intent.ID
	s.logger.Info("booking paid", "booking_id", bookingID, "transaction_id", intent.ID)
	return b, nil
}

func contains(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
