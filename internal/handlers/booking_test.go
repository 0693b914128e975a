package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tanvir-rahman/doctorsportal/internal/booking"
	"github.com/tanvir-rahman/doctorsportal/internal/model"
)

type stubCatalog struct {
	options []model.AppointmentOption
}

func (c *stubCatalog) ListOptions(_ context.Context) ([]model.AppointmentOption, error) {
	return c.options, nil
}

func (c *stubCatalog) GetOptionByName(_ context.Context, name string) (model.AppointmentOption, error) {
	for _, opt := range c.options {
		if opt.Name == name {
			return opt, nil
		}
	}
	return model.AppointmentOption{}, booking.ErrNotFound
}

type stubStore struct {
	bookings map[string]model.Booking
	nextID   int
}

func newStubStore() *stubStore {
	return &stubStore{bookings: map[string]model.Booking{}}
}

func (s *stubStore) FindByDate(_ context.Context, date time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.AppointmentDate.Equal(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubStore) FindByEmailAndDate(_ context.Context, email string, date time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.PatientEmail == email && b.AppointmentDate.Equal(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubStore) FindByEmail(_ context.Context, email string) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.PatientEmail == email {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubStore) GetByID(_ context.Context, id string) (model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

func (s *stubStore) Insert(_ context.Context, b model.Booking) (string, error) {
	s.nextID++
	id := "b-" + time.Now().Format("150405") + "-" + string(rune('a'+s.nextID))
	b.ID = id
	b.CreatedAt = time.Now()
	s.bookings[id] = b
	return id, nil
}

func (s *stubStore) SetPaid(_ context.Context, id, transactionID string) error {
	b, ok := s.bookings[id]
	if !ok {
		return booking.ErrNotFound
	}
	if b.Paid {
		return booking.ErrAlreadyPaid
	}
	b.Paid = true
	b.Status = model.StatusPaid
	b.TransactionID = transactionID
	s.bookings[id] = b
	return nil
}

func (s *stubStore) Delete(_ context.Context, id string) error {
	if _, ok := s.bookings[id]; !ok {
		return booking.ErrNotFound
	}
	delete(s.bookings, id)
	return nil
}

type stubGateway struct {
	intents map[string]booking.Intent
}

func (g *stubGateway) CreateIntent(_ context.Context, amountCents int64, metadata map[string]string) (booking.Intent, error) {
	if g.intents == nil {
		g.intents = map[string]booking.Intent{}
	}
	intent := booking.Intent{
		ID:           "pi_test_1",
		ClientSecret: "pi_test_1_secret",
		AmountCents:  amountCents,
		Metadata:     metadata,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *stubGateway) VerifyIntent(_ context.Context, intentID string) (booking.Intent, error) {
	return g.intents[intentID], nil
}

func (g *stubGateway) settle(intentID string) {
	intent := g.intents[intentID]
	intent.Succeeded = true
	g.intents[intentID] = intent
}

func testHandler(store *stubStore, gateway *stubGateway) *BookingHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := &stubCatalog{options: []model.AppointmentOption{
		{ID: "1", Name: "Teeth Cleaning", PriceCents: 5000, Slots: []string{"09:00", "10:00"}},
	}}
	svc := booking.NewService(catalog, store, gateway, logger)
	return NewBookingHandler(svc, logger)
}

func withPrincipal(r *http.Request, email, role string) *http.Request {
	ctx := context.WithValue(r.Context(), ctxKeyPrincipal, booking.Principal{Email: email, Role: role})
	return r.WithContext(ctx)
}

func TestAppointmentOptions_RequiresDate(t *testing.T) {
	h := testHandler(newStubStore(), &stubGateway{})

	rec := httptest.NewRecorder()
	h.AppointmentOptions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointment-options", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.AppointmentOptions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointment-options?date=05-01-2024", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad format, got %d", rec.Code)
	}
}

func TestAppointmentOptions_ReturnsRemainingSlots(t *testing.T) {
	store := newStubStore()
	h := testHandler(store, &stubGateway{})

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	store.bookings["b-1"] = model.Booking{
		ID:              "b-1",
		PatientEmail:    "bob@example.com",
		Treatment:       "Teeth Cleaning",
		AppointmentDate: day,
		Slot:            "09:00",
		Status:          model.StatusConfirmed,
	}

	rec := httptest.NewRecorder()
	h.AppointmentOptions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointment-options?date=2024-01-05", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var options []struct {
		Name  string   `json:"name"`
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&options); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(options) != 1 || options[0].Name != "Teeth Cleaning" {
		t.Fatalf("unexpected options %+v", options)
	}
	if len(options[0].Slots) != 1 || options[0].Slots[0] != "10:00" {
		t.Fatalf("expected only 10:00 left, got %v", options[0].Slots)
	}
}

func TestCreateBooking_Success(t *testing.T) {
	h := testHandler(newStubStore(), &stubGateway{})

	body := `{"patient_name":"Alice","treatment":"Teeth Cleaning","appointment_date":"2024-01-05","slot":"09:00"}`
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body)),
		"alice@example.com", model.RolePatient)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp bookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PatientEmail != "alice@example.com" || resp.Status != model.StatusConfirmed {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.AppointmentDate != "2024-01-05" {
		t.Fatalf("unexpected date %q", resp.AppointmentDate)
	}
}

func TestCreateBooking_SlotConflictIs409(t *testing.T) {
	store := newStubStore()
	h := testHandler(store, &stubGateway{})

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	store.bookings["b-1"] = model.Booking{
		ID:              "b-1",
		PatientEmail:    "bob@example.com",
		Treatment:       "Teeth Cleaning",
		AppointmentDate: day,
		Slot:            "09:00",
	}

	body := `{"treatment":"Teeth Cleaning","appointment_date":"2024-01-05","slot":"09:00"}`
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body)),
		"alice@example.com", model.RolePatient)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateBooking_DuplicateDateCarriesMessage(t *testing.T) {
	store := newStubStore()
	h := testHandler(store, &stubGateway{})

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	store.bookings["b-1"] = model.Booking{
		ID:              "b-1",
		PatientEmail:    "alice@example.com",
		Treatment:       "Teeth Cleaning",
		AppointmentDate: day,
		Slot:            "09:00",
	}

	body := `{"treatment":"Teeth Cleaning","appointment_date":"2024-01-05","slot":"10:00"}`
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body)),
		"alice@example.com", model.RolePatient)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "2024-01-05") {
		t.Fatalf("expected conflicting date in message, got %q", rec.Body.String())
	}
}

func TestCreateBooking_UnknownTreatmentIs404(t *testing.T) {
	h := testHandler(newStubStore(), &stubGateway{})

	body := `{"treatment":"Mind Reading","appointment_date":"2024-01-05","slot":"09:00"}`
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body)),
		"alice@example.com", model.RolePatient)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListBookings_ForbiddenForOtherPatient(t *testing.T) {
	h := testHandler(newStubStore(), &stubGateway{})

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/bookings?email=bob@example.com", nil),
		"alice@example.com", model.RolePatient)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestListBookings_AdminReadsAnyPatient(t *testing.T) {
	store := newStubStore()
	h := testHandler(store, &stubGateway{})

	store.bookings["b-1"] = model.Booking{
		ID:           "b-1",
		PatientEmail: "bob@example.com",
		Treatment:    "Teeth Cleaning",
	}

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/bookings?email=bob@example.com", nil),
		"root@example.com", model.RoleAdmin)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []bookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list) != 1 || list[0].ID != "b-1" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestCancelBooking_OwnerCanCancel(t *testing.T) {
	store := newStubStore()
	h := testHandler(store, &stubGateway{})

	store.bookings["b-1"] = model.Booking{
		ID:           "b-1",
		PatientEmail: "alice@example.com",
	}

	body := `{"booking_id":"b-1"}`
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/bookings/cancel", strings.NewReader(body)),
		"alice@example.com", model.RolePatient)
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := store.bookings["b-1"]; ok {
		t.Fatal("booking was not deleted")
	}
}

func TestPaymentFlow_EndToEnd(t *testing.T) {
	store := newStubStore()
	gateway := &stubGateway{}
	h := testHandler(store, gateway)

	store.bookings["b-1"] = model.Booking{
		ID:           "b-1",
		PatientEmail: "alice@example.com",
		Treatment:    "Teeth Cleaning",
		Status:       model.StatusConfirmed,
	}

	// Open the intent; amount must come from the catalog.
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent",
		strings.NewReader(`{"booking_id":"b-1"}`)), "alice@example.com", model.RolePatient)
	rec := httptest.NewRecorder()
	h.CreatePaymentIntent(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var intent paymentIntentResponse
	if err := json.NewDecoder(rec.Body).Decode(&intent); err != nil {
		t.Fatalf("decode intent: %v", err)
	}
	if intent.AmountCents != 5000 {
		t.Fatalf("expected catalog price 5000, got %d", intent.AmountCents)
	}

	// Confirming before settlement is rejected.
	confirmBody := `{"booking_id":"b-1","intent_id":"` + intent.IntentID + `"}`
	req = withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/payments/confirm",
		strings.NewReader(confirmBody)), "alice@example.com", model.RolePatient)
	rec = httptest.NewRecorder()
	h.ConfirmPayment(rec, req)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 before settlement, got %d", rec.Code)
	}

	gateway.settle(intent.IntentID)

	req = withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/payments/confirm",
		strings.NewReader(confirmBody)), "alice@example.com", model.RolePatient)
	rec = httptest.NewRecorder()
	h.ConfirmPayment(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after settlement, got %d: %s", rec.Code, rec.Body.String())
	}
	var paid bookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&paid); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !paid.Paid || paid.Status != model.StatusPaid || paid.TransactionID != intent.IntentID {
		t.Fatalf("unexpected paid booking %+v", paid)
	}

	// Paid is terminal.
	req = withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/payments/confirm",
		strings.NewReader(confirmBody)), "alice@example.com", model.RolePatient)
	rec = httptest.NewRecorder()
	h.ConfirmPayment(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for repeated confirm, got %d", rec.Code)
	}
}
