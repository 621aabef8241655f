package appointment_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/appointment/appointmenttest"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store    *appointmenttest.Store
	svc      *appointment.Service
	clock    *fakeClock
	provider appointment.Provider
	patient  appointment.Patient

	secretary auth.Identity
	admin     auth.Identity
	doctor    auth.Identity
	self      auth.Identity // the patient above
}

// Sunday 2025-06-08 08:00 UTC.
var sunday = time.Date(2025, 6, 8, 8, 0, 0, 0, time.UTC)

var (
	monday  = appointment.NewDate(2025, 6, 9)
	tuesday = appointment.NewDate(2025, 6, 10)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: appointmenttest.NewStore(),
		clock: &fakeClock{now: sunday},
	}

	f.provider = appointment.Provider{
		ID:           uuid.New(),
		Name:         "Dr. Demir",
		SlotMinutes:  30,
		DefaultPrice: decimal.NewFromInt(40),
	}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		f.provider.Hours = append(f.provider.Hours, appointment.WorkingHours{
			Weekday: wd,
			Open:    appointment.NewClock(9, 0),
			Close:   appointment.NewClock(17, 0),
		})
	}
	f.store.AddProvider(f.provider)

	f.patient = f.addPatient("Ayse Kaya", "+90 532 111 22 33")

	f.secretary = auth.Identity{UserID: uuid.New(), Role: auth.RoleSecretary}
	f.admin = auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}
	f.doctor = auth.Identity{UserID: uuid.New(), Role: auth.RoleDoctor, ProviderID: &f.provider.ID}
	f.self = auth.Identity{UserID: uuid.New(), Role: auth.RolePatient, PatientID: &f.patient.ID}

	cfg := config.Default()
	f.svc = appointment.NewService(f.store, nil, cfg, appointment.WithClock(f.clock.Now))
	return f
}

func (f *fixture) addPatient(name, phone string) appointment.Patient {
	p := appointment.Patient{
		ID:       uuid.New(),
		FullName: name,
		Phone:    phone,
		Balance:  decimal.Zero,
	}
	f.store.AddPatient(p)
	p.NormalizedPhone = appointment.NormalizePhone(phone)
	return p
}

// seed places an appointment directly in the store, bypassing slot checks.
func (f *fixture) seed(patientID uuid.UUID, d appointment.Date, hour, minute int, status appointment.Status) appointment.Appointment {
	a := appointment.Appointment{
		ID:            uuid.New(),
		ProviderID:    f.provider.ID,
		PatientID:     patientID,
		Date:          d,
		Time:          appointment.NewClock(hour, minute),
		Status:        status,
		PaymentStatus: appointment.PaymentUnpaid,
		Price:         f.provider.DefaultPrice,
		Kind:          appointment.KindBooking,
	}
	f.store.AddAppointment(a)
	return a
}

func (f *fixture) book(t *testing.T, id auth.Identity, patientID uuid.UUID, d appointment.Date, hour, minute int) *appointment.Appointment {
	t.Helper()
	a, err := f.svc.Book(t.Context(), id, appointment.BookRequest{
		ProviderID: f.provider.ID,
		PatientID:  patientID,
		Date:       d,
		Time:       appointment.NewClock(hour, minute),
	})
	if err != nil {
		t.Fatalf("book %s %02d:%02d: %v", d, hour, minute, err)
	}
	return a
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *appointment.Appointment {
	t.Helper()
	a, err := f.store.GetAppointment(t.Context(), id)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	return a
}

func (f *fixture) patientRow(t *testing.T, id uuid.UUID) *appointment.Patient {
	t.Helper()
	p, err := f.store.GetPatient(t.Context(), id)
	if err != nil {
		t.Fatalf("get patient: %v", err)
	}
	return p
}

func (f *fixture) eventsOfType(typ string) []appointment.EventLog {
	var out []appointment.EventLog
	for _, ev := range f.store.Events() {
		if ev.EventType == typ {
			out = append(out, ev)
		}
	}
	return out
}

func wantValidation(t *testing.T, err error, code string) {
	t.Helper()
	var ve *appointment.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError %q, got %v", code, err)
	}
	if ve.Code != code {
		t.Fatalf("expected validation code %q, got %q (%s)", code, ve.Code, ve.Msg)
	}
}

func wantForbidden(t *testing.T, err error, reason string) {
	t.Helper()
	var fe *appointment.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError %q, got %v", reason, err)
	}
	if fe.Reason != reason {
		t.Fatalf("expected forbidden reason %q, got %q", reason, fe.Reason)
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
