package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tanvir-rahman/doctorsportal/internal/booking"
	"github.com/tanvir-rahman/doctorsportal/internal/model"
	"github.com/tanvir-rahman/doctorsportal/internal/outbox"
	"github.com/tanvir-rahman/doctorsportal/libs/db"
)

const (
	slotConstraint       = "bookings_slot_key"
	patientDayConstraint = "bookings_patient_day_key"
)

// BookingRepository implements booking.Store on Postgres. Every mutation
// commits together with its outbox event, and conflicts are decided by the
// two unique constraints rather than by anything in process memory.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const bookingColumns = `id, patient_name, patient_email, treatment, appointment_date, slot, status, paid, COALESCE(transaction_id, ''), created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.PatientName,
		&b.PatientEmail,
		&b.Treatment,
		&b.AppointmentDate,
		&b.Slot,
		&b.Status,
		&b.Paid,
		&b.TransactionID,
		&b.CreatedAt,
	)
	return b, err
}

func (r *BookingRepository) FindByDate(ctx context.Context, date time.Time) ([]model.Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE appointment_date = $1
		ORDER BY treatment, slot
	`, date)
}

func (r *BookingRepository) FindByEmailAndDate(ctx context.Context, email string, date time.Time) ([]model.Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_email = $1 AND appointment_date = $2
	`, email, date)
}

func (r *BookingRepository) FindByEmail(ctx context.Context, email string) ([]model.Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_email = $1
		ORDER BY appointment_date DESC, slot
	`, email)
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, booking.ErrNotFound
	}
	b, err := scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, booking.ErrNotFound
		}
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepository) Insert(ctx context.Context, b model.Booking) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.NewString()
	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, patient_name, patient_email, treatment, appointment_date, slot, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, id, b.PatientName, b.PatientEmail, b.Treatment, b.AppointmentDate, b.Slot, model.StatusConfirmed).Scan(&createdAt)
	if err != nil {
		return "", translateUniqueViolation(err)
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":       id,
		"patient_email":    b.PatientEmail,
		"treatment":        b.Treatment,
		"appointment_date": b.AppointmentDate.Format(time.DateOnly),
		"slot":             b.Slot,
		"created_at":       createdAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     "portal.booking.created.v1",
		Payload:       payload,
	}); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", translateUniqueViolation(err)
	}
	return id, nil
}

func (r *BookingRepository) SetPaid(ctx context.Context, id, transactionID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return booking.ErrNotFound
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var email string
	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET paid = TRUE,
			status = $2,
			transaction_id = $3
		WHERE id = $1 AND NOT paid
		RETURNING patient_email
	`, id, model.StatusPaid, transactionID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either missing or already paid; tell them apart for the caller.
			var paid bool
			if probeErr := tx.QueryRow(ctx, `SELECT paid FROM bookings WHERE id = $1`, id).Scan(&paid); probeErr != nil {
				if errors.Is(probeErr, pgx.ErrNoRows) {
					return booking.ErrNotFound
				}
				return probeErr
			}
			return booking.ErrAlreadyPaid
		}
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":     id,
		"patient_email":  email,
		"transaction_id": transactionID,
		"paid_at":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     "portal.booking.paid.v1",
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return booking.ErrNotFound
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var b model.Booking
	err = tx.QueryRow(ctx, `
		DELETE FROM bookings
		WHERE id = $1
		RETURNING patient_email, treatment, appointment_date, slot
	`, id).Scan(&b.PatientEmail, &b.Treatment, &b.AppointmentDate, &b.Slot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.ErrNotFound
		}
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":       id,
		"patient_email":    b.PatientEmail,
		"treatment":        b.Treatment,
		"appointment_date": b.AppointmentDate.Format(time.DateOnly),
		"slot":             b.Slot,
		"cancelled_at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     "portal.booking.cancelled.v1",
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// translateUniqueViolation maps the two booking constraints to the sentinel
// errors the engine understands. Anything else passes through untouched.
func translateUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case slotConstraint:
		return booking.ErrSlotTaken
	case patientDayConstraint:
		return booking.ErrDateTaken
	}
	return err
}
