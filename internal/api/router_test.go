package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/appointment/appointmenttest"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler  http.Handler
	store    *appointmenttest.Store
	tokens   *auth.Manager
	provider appointment.Provider
	patient  appointment.Patient
}

func newTestServer(t *testing.T, limit config.RateLimitConfig) *testServer {
	t.Helper()

	store := appointmenttest.NewStore()
	provider := appointment.Provider{
		ID:           uuid.New(),
		Name:         "Dr. Yilmaz",
		SlotMinutes:  30,
		DefaultPrice: decimal.NewFromInt(40),
	}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		provider.Hours = append(provider.Hours, appointment.WorkingHours{
			Weekday: wd, Open: appointment.NewClock(9, 0), Close: appointment.NewClock(17, 0),
		})
	}
	store.AddProvider(provider)

	patient := appointment.Patient{ID: uuid.New(), FullName: "Zeynep Ak", Phone: "0532 000 11 22", Balance: decimal.NewFromInt(20)}
	store.AddPatient(patient)

	cfg := config.Default()
	now := time.Date(2025, 6, 8, 8, 0, 0, 0, time.UTC)
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg, "clinic")
	svc := appointment.NewService(store, nil, cfg,
		appointment.WithClock(func() time.Time { return now }),
		appointment.WithMetrics(m),
	)
	tokens := auth.NewManager(config.AuthConfig{JWTSecret: "router-test", Issuer: "clinic-test"})

	h := NewRouter(RouterConfig{
		Service:  svc,
		Verifier: tokens,
		Metrics:  m,
		Gatherer: reg,
		PgPool:   fakePinger{},
		Limit:    limit,
		Env:      "test",
		Version:  "v0.0.0",
	})
	return &testServer{handler: h, store: store, tokens: tokens, provider: provider, patient: patient}
}

func (s *testServer) token(t *testing.T, id auth.Identity) string {
	t.Helper()
	if id.UserID == uuid.Nil {
		id.UserID = uuid.New()
	}
	tok, err := s.tokens.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) secretary(t *testing.T) string {
	return s.token(t, auth.Identity{Role: auth.RoleSecretary})
}

func (s *testServer) self(t *testing.T) string {
	return s.token(t, auth.Identity{Role: auth.RolePatient, PatientID: &s.patient.ID})
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func noLimit() config.RateLimitConfig { return config.RateLimitConfig{} }

func TestHealth(t *testing.T) {
	s := newTestServer(t, noLimit())

	rec := s.do(t, http.MethodGet, "/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("live: %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}

	rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
	ready := decode[ReadinessResponse](t, rec)
	if rec.Code != http.StatusOK || ready.Status != "ok" || ready.Dependencies["redis"] != "disabled" {
		t.Fatalf("unexpected readiness %d %+v", rec.Code, ready)
	}

	down := NewHealthHandler(fakePinger{err: errors.New("refused")}, nil, "test", "v")
	rec = httptest.NewRecorder()
	down.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when postgres is down, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, noLimit())

	rec := s.do(t, http.MethodGet, "/api/v1/providers", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/providers", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/providers", s.self(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	providers := decode[[]ProviderResponse](t, rec)
	if len(providers) != 1 || providers[0].DefaultPrice != "40.00" || len(providers[0].Hours) != 5 {
		t.Fatalf("unexpected providers %+v", providers)
	}
}

func TestBookAndSlots(t *testing.T) {
	s := newTestServer(t, noLimit())

	rec := s.do(t, http.MethodPost, "/api/v1/appointments", s.self(t), BookRequest{
		ProviderID: s.provider.ID.String(),
		PatientID:  s.patient.ID.String(),
		Date:       "2025-06-09",
		Time:       "09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", rec.Code, rec.Body.String())
	}
	booked := decode[AppointmentResponse](t, rec)
	if booked.Status != "scheduled" || booked.PaymentStatus != "unpaid" || booked.AmountDue != "40.00" {
		t.Fatalf("unexpected appointment %+v", booked)
	}

	other := appointment.Patient{ID: uuid.New(), FullName: "Can Er", Phone: "05320001111"}
	s.store.AddPatient(other)
	rec = s.do(t, http.MethodPost, "/api/v1/appointments", s.secretary(t), BookRequest{
		ProviderID: s.provider.ID.String(),
		PatientID:  other.ID.String(),
		Date:       "2025-06-09",
		Time:       "09:00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if e := decode[ErrorResponse](t, rec); e.Error != "slot_taken" {
		t.Fatalf("expected slot_taken, got %+v", e)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/providers/"+s.provider.ID.String()+"/slots?date=2025-06-09", s.self(t), nil)
	slots := decode[[]TimeSlotResponse](t, rec)
	if len(slots) < 2 || slots[0].IsAvailable || !slots[1].IsAvailable {
		t.Fatalf("unexpected slots %+v", slots)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/appointments/"+booked.ID.String(), s.self(t), nil)
	detail := decode[AppointmentDetailResponse](t, rec)
	if rec.Code != http.StatusOK || detail.Patient == nil || detail.Provider == nil || detail.Provider.Name != s.provider.Name {
		t.Fatalf("unexpected detail %d %+v", rec.Code, detail)
	}
}

func TestBadInput(t *testing.T) {
	s := newTestServer(t, noLimit())

	tests := []struct {
		name string
		body any
		code string
	}{
		{"bad provider", BookRequest{ProviderID: "x", PatientID: s.patient.ID.String(), Date: "2025-06-09", Time: "09:00"}, "invalid_provider_id"},
		{"bad date", BookRequest{ProviderID: s.provider.ID.String(), PatientID: s.patient.ID.String(), Date: "09/06/2025", Time: "09:00"}, "invalid_date"},
		{"bad time", BookRequest{ProviderID: s.provider.ID.String(), PatientID: s.patient.ID.String(), Date: "2025-06-09", Time: "nine"}, "invalid_time"},
		{"unknown field", map[string]any{"slot_id": "x"}, "invalid_request_body"},
		{"misaligned", BookRequest{ProviderID: s.provider.ID.String(), PatientID: s.patient.ID.String(), Date: "2025-06-09", Time: "09:10"}, "not_aligned"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/appointments", s.secretary(t), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if e := decode[ErrorResponse](t, rec); e.Error != tt.code {
				t.Fatalf("expected %s, got %+v", tt.code, e)
			}
		})
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, noLimit())
	sec := s.secretary(t)

	rec := s.do(t, http.MethodPost, "/api/v1/appointments", sec, BookRequest{
		ProviderID: s.provider.ID.String(),
		PatientID:  s.patient.ID.String(),
		Date:       "2025-06-10",
		Time:       "10:00",
	})
	appt := decode[AppointmentResponse](t, rec)
	base := "/api/v1/appointments/" + appt.ID.String()

	rec = s.do(t, http.MethodPut, base+"/status", s.self(t), StatusRequest{Status: "checked_in"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient check-in should be 403, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPut, base+"/status", sec, StatusRequest{Status: "waiting"})
	if rec.Code != http.StatusOK || decode[AppointmentResponse](t, rec).Status != "checked_in" {
		t.Fatalf("check in failed: %d", rec.Code)
	}

	rec = s.do(t, http.MethodPut, base+"/pay", sec, PayRequest{Method: "balance", Amount: ptrDecimal("50")})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d %s", rec.Code, rec.Body.String())
	}

	final := ptrDecimal("30")
	rec = s.do(t, http.MethodPut, base+"/status", sec, StatusRequest{Status: "done", FinalPrice: final})
	done := decode[AppointmentResponse](t, rec)
	if done.Status != "done" || done.AmountDue != "30.00" {
		t.Fatalf("unexpected completion %+v", done)
	}

	rec = s.do(t, http.MethodPut, base+"/pay", sec, PayRequest{Method: "cash"})
	if rec.Code != http.StatusOK || decode[AppointmentResponse](t, rec).PaymentStatus != "paid" {
		t.Fatalf("pay failed: %d", rec.Code)
	}

	rec = s.do(t, http.MethodPut, base+"/pay", sec, PayRequest{Method: "cash"})
	if rec.Code != http.StatusConflict || decode[ErrorResponse](t, rec).Error != "already_paid" {
		t.Fatalf("expected already_paid conflict, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, base+"/cancel", sec, nil)
	if rec.Code != http.StatusConflict || decode[ErrorResponse](t, rec).Error != "invalid_transition" {
		t.Fatalf("terminal cancel should be invalid_transition, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/patients/"+s.patient.ID.String()+"/summary", s.self(t), nil)
	sum := decode[FinancialSummaryResponse](t, rec)
	if sum.TotalPaid != "30.00" || sum.WalletBalance != "20.00" {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestRoleGuards(t *testing.T) {
	s := newTestServer(t, noLimit())

	rec := s.do(t, http.MethodPost, "/api/v1/appointments/walk-in", s.self(t), WalkInRequest{
		ProviderID: s.provider.ID.String(),
		Time:       "09:00",
	})
	if rec.Code != http.StatusForbidden || decode[ErrorResponse](t, rec).Error != "wrong_role" {
		t.Fatalf("expected wrong_role, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/blocked-phones", s.secretary(t), BlockedPhoneRequest{Phone: "123"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("secretary must not block phones, got %d", rec.Code)
	}
}

func TestAccessCheck(t *testing.T) {
	s := newTestServer(t, noLimit())
	adminTok := s.token(t, auth.Identity{Role: auth.RoleAdmin})

	rec := s.do(t, http.MethodPost, "/api/v1/blocked-phones", adminTok, BlockedPhoneRequest{Phone: "+90 532 000 11 22", Reason: "spam"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("block phone: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/access/check?action=login&phone=905320001122", "", nil)
	got := decode[AccessResponse](t, rec)
	if got.Allowed || got.Reason != "phone_blocked" {
		t.Fatalf("expected phone_blocked, got %+v", got)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/access/check?action=login&phone=05551234567", "", nil)
	if got := decode[AccessResponse](t, rec); !got.Allowed {
		t.Fatalf("unknown phone should be allowed, got %+v", got)
	}

	for _, path := range []string{
		"/api/v1/access/check?action=fly&phone=05551234567",
		"/api/v1/access/check?action=book",
		"/api/v1/access/check?action=book&patient_id=" + s.patient.ID.String(),
	} {
		if rec := s.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestPatientAccess(t *testing.T) {
	s := newTestServer(t, noLimit())
	adminTok := s.token(t, auth.Identity{Role: auth.RoleAdmin})
	path := "/api/v1/patients/" + s.patient.ID.String() + "/access?action=book"

	if rec := s.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/patients/"+s.patient.ID.String()+"/block", adminTok, BlockRequest{Booking: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("block patient: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, path, s.secretary(t), nil)
	if got := decode[AccessResponse](t, rec); got.Allowed || got.Reason != "booking_blocked" {
		t.Fatalf("expected booking_blocked, got %+v", got)
	}
	rec = s.do(t, http.MethodGet, path, s.self(t), nil)
	if got := decode[AccessResponse](t, rec); got.Allowed {
		t.Fatalf("patient should see their own block, got %+v", got)
	}

	stranger := uuid.New()
	other := s.token(t, auth.Identity{Role: auth.RolePatient, PatientID: &stranger})
	if rec := s.do(t, http.MethodGet, path, other, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another patient, got %d", rec.Code)
	}
}

func TestHolidayOverHTTP(t *testing.T) {
	s := newTestServer(t, noLimit())
	adminTok := s.token(t, auth.Identity{Role: auth.RoleAdmin})

	s.do(t, http.MethodPost, "/api/v1/appointments", s.secretary(t), BookRequest{
		ProviderID: s.provider.ID.String(),
		PatientID:  s.patient.ID.String(),
		Date:       "2025-06-11",
		Time:       "11:00",
	})

	rec := s.do(t, http.MethodPost, "/api/v1/holidays", adminTok, HolidayRequest{Date: "2025-06-11", Name: "Flood"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add holiday: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[AddHolidayResponse](t, rec); got.Cancelled != 1 {
		t.Fatalf("expected 1 cancellation, got %+v", got)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/providers/"+s.provider.ID.String()+"/slots?date=2025-06-11", s.self(t), nil)
	if slots := decode[[]TimeSlotResponse](t, rec); len(slots) != 0 {
		t.Fatalf("holiday should have no slots, got %d", len(slots))
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	tok := s.secretary(t)

	body := BookRequest{ProviderID: s.provider.ID.String(), PatientID: s.patient.ID.String(), Date: "2025-06-09", Time: "09:00"}
	if rec := s.do(t, http.MethodPost, "/api/v1/appointments", tok, body); rec.Code != http.StatusCreated {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/v1/appointments", tok, body)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}

	// Reads are not throttled.
	if rec := s.do(t, http.MethodGet, "/api/v1/providers", tok, nil); rec.Code != http.StatusOK {
		t.Fatalf("read throttled: %d", rec.Code)
	}
}

func TestLimiterStore_EvictsIdleClients(t *testing.T) {
	now := time.Date(2025, 6, 8, 8, 0, 0, 0, time.UTC)
	store := newLimiterStore(1, 1)
	store.now = func() time.Time { return now }

	if !store.get("ip:10.0.0.1").Allow() {
		t.Fatal("first request should pass")
	}
	store.get("ip:10.0.0.2")

	now = now.Add(3 * time.Minute)
	store.get("ip:10.0.0.2")

	now = now.Add(3 * time.Minute)
	store.get("ip:10.0.0.3")

	if _, ok := store.limiters["ip:10.0.0.1"]; ok {
		t.Error("idle client should have been evicted")
	}
	if _, ok := store.limiters["ip:10.0.0.2"]; !ok {
		t.Error("recently seen client should be kept")
	}
	if n := len(store.limiters); n != 2 {
		t.Fatalf("expected 2 limiters, got %d", n)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, noLimit())
	s.do(t, http.MethodGet, "/api/v1/providers", s.self(t), nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `clinic_http_requests_total{method="GET",route="/api/v1/providers",status="200"} 1`) {
		t.Fatalf("request metric missing:\n%s", rec.Body.String())
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&appointment.ValidationError{Code: "in_past", Msg: "x"}, http.StatusBadRequest, "in_past"},
		{&appointment.InsufficientBalanceError{}, http.StatusPaymentRequired, "insufficient_balance"},
		{&appointment.ForbiddenError{Reason: "booking_blocked"}, http.StatusForbidden, "booking_blocked"},
		{&appointment.NotFoundError{Entity: "patient"}, http.StatusNotFound, "not_found"},
		{appointment.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{&appointment.InvalidTransitionError{From: appointment.StatusDone, Event: appointment.EventCancel}, http.StatusConflict, "invalid_transition"},
		{&appointment.PolicyViolation{Code: "cancellation_window"}, http.StatusUnprocessableEntity, "cancellation_window"},
		{&appointment.TimeoutError{Op: "book"}, http.StatusGatewayTimeout, "timeout"},
		{&appointment.InternalError{Op: "book", Err: errors.New("secret dsn")}, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			e := decode[ErrorResponse](t, rec)
			if e.Error != tt.code {
				t.Fatalf("expected %s, got %s", tt.code, e.Error)
			}
			if strings.Contains(e.Details, "secret") {
				t.Fatal("internal details leaked")
			}
		})
	}
}

func ptrDecimal(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
