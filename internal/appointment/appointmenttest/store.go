// Package appointmenttest provides an in-memory appointment.Store for tests.
//
// A transaction holds the store mutex for its whole duration and works on a
// copy of the data that replaces the original only on commit, so concurrent
// callers see the same all-or-nothing behaviour as Postgres. The live slot
// rule mirrors the partial unique index on appointments.
package appointmenttest

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type state struct {
	providers    map[uuid.UUID]appointment.Provider
	patients     map[uuid.UUID]appointment.Patient
	appointments map[uuid.UUID]appointment.Appointment
	holidays     map[uuid.UUID]appointment.Holiday
	phones       map[string]appointment.BlockedPhone
	payments     []appointment.Payment
	wallet       []appointment.WalletTransaction
	events       []appointment.EventLog
}

func (s *state) clone() *state {
	return &state{
		providers:    maps.Clone(s.providers),
		patients:     maps.Clone(s.patients),
		appointments: maps.Clone(s.appointments),
		holidays:     maps.Clone(s.holidays),
		phones:       maps.Clone(s.phones),
		payments:     slices.Clone(s.payments),
		wallet:       slices.Clone(s.wallet),
		events:       slices.Clone(s.events),
	}
}

type Store struct {
	mu       sync.Mutex
	data     *state
	failures map[string]error
}

func NewStore() *Store {
	return &Store{
		data: &state{
			providers:    map[uuid.UUID]appointment.Provider{},
			patients:     map[uuid.UUID]appointment.Patient{},
			appointments: map[uuid.UUID]appointment.Appointment{},
			holidays:     map[uuid.UUID]appointment.Holiday{},
			phones:       map[string]appointment.BlockedPhone{},
		},
		failures: map[string]error{},
	}
}

// FailOn makes every later call of the named method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *Store) InTx(ctx context.Context, fn func(tx appointment.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.data.clone()
	if err := fn(&memTx{view{st: working, failures: s.failures}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) read() view {
	return view{st: s.data, failures: s.failures}
}

// Seeding and inspection helpers.

func (s *Store) AddProvider(p appointment.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.providers[p.ID] = p
}

func (s *Store) AddPatient(p appointment.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.NormalizedPhone == "" {
		p.NormalizedPhone = appointment.NormalizePhone(p.Phone)
	}
	s.data.patients[p.ID] = p
}

func (s *Store) AddAppointment(a appointment.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.appointments[a.ID] = a
}

func (s *Store) AddHoliday(h appointment.Holiday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.holidays[h.ID] = h
}

func (s *Store) Patients() []appointment.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.data.patients))
}

func (s *Store) Appointments() []appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.data.appointments))
}

func (s *Store) Payments() []appointment.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.payments)
}

func (s *Store) Events() []appointment.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.events)
}

// Reader on the committed state.

func (s *Store) GetProvider(ctx context.Context, id uuid.UUID) (*appointment.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetProvider(ctx, id)
}

func (s *Store) ListProviders(ctx context.Context) ([]appointment.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListProviders(ctx)
}

func (s *Store) GetPatient(ctx context.Context, id uuid.UUID) (*appointment.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetPatient(ctx, id)
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetAppointment(ctx, id)
}

func (s *Store) ListAppointments(ctx context.Context, q appointment.AppointmentQuery) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListAppointments(ctx, q)
}

func (s *Store) ListHolidays(ctx context.Context) ([]appointment.Holiday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListHolidays(ctx)
}

func (s *Store) IsPhoneBlocked(ctx context.Context, normalized string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().IsPhoneBlocked(ctx, normalized)
}

func (s *Store) ListBlockedPhones(ctx context.Context) ([]appointment.BlockedPhone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListBlockedPhones(ctx)
}

func (s *Store) ListWalletTransactions(ctx context.Context, patientID uuid.UUID) ([]appointment.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListWalletTransactions(ctx, patientID)
}

func (s *Store) ListPayments(ctx context.Context, q appointment.PaymentQuery) ([]appointment.PaymentLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListPayments(ctx, q)
}

func (s *Store) TotalWalletBalance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().TotalWalletBalance(ctx)
}

// view implements the reads over one state snapshot. Callers hold the mutex.
type view struct {
	st       *state
	failures map[string]error
}

func (v view) fail(method string) error {
	return v.failures[method]
}

func (v view) GetProvider(_ context.Context, id uuid.UUID) (*appointment.Provider, error) {
	if err := v.fail("GetProvider"); err != nil {
		return nil, err
	}
	p, ok := v.st.providers[id]
	if !ok {
		return nil, appointment.ErrProviderNotFound
	}
	return &p, nil
}

func (v view) ListProviders(_ context.Context) ([]appointment.Provider, error) {
	out := slices.Collect(maps.Values(v.st.providers))
	slices.SortFunc(out, func(a, b appointment.Provider) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out, nil
}

func (v view) GetPatient(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	p, ok := v.st.patients[id]
	if !ok {
		return nil, appointment.ErrPatientNotFound
	}
	return &p, nil
}

func (v view) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := v.st.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (v view) ListAppointments(_ context.Context, q appointment.AppointmentQuery) ([]appointment.Appointment, error) {
	if err := v.fail("ListAppointments"); err != nil {
		return nil, err
	}
	out := []appointment.Appointment{}
	for _, a := range v.st.appointments {
		switch {
		case q.ProviderID != nil && a.ProviderID != *q.ProviderID:
		case q.PatientID != nil && a.PatientID != *q.PatientID:
		case q.From != nil && a.Date.Before(*q.From):
		case q.To != nil && a.Date.After(*q.To):
		case len(q.Statuses) > 0 && !slices.Contains(q.Statuses, a.Status):
		case q.ExcludeCancelled && a.Status == appointment.StatusCancelled:
		case q.PaymentStatus != nil && a.PaymentStatus != *q.PaymentStatus:
		default:
			out = append(out, a)
		}
	}

	slices.SortFunc(out, func(a, b appointment.Appointment) int {
		c := a.Date.Compare(b.Date)
		if c == 0 {
			c = int(a.Time - b.Time)
		}
		if q.Descending {
			return -c
		}
		return c
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []appointment.Appointment{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (v view) ListHolidays(_ context.Context) ([]appointment.Holiday, error) {
	out := slices.Collect(maps.Values(v.st.holidays))
	slices.SortFunc(out, func(a, b appointment.Holiday) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (v view) IsPhoneBlocked(_ context.Context, normalized string) (bool, error) {
	_, ok := v.st.phones[normalized]
	return ok, nil
}

func (v view) ListBlockedPhones(_ context.Context) ([]appointment.BlockedPhone, error) {
	out := slices.Collect(maps.Values(v.st.phones))
	slices.SortFunc(out, func(a, b appointment.BlockedPhone) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (v view) ListWalletTransactions(_ context.Context, patientID uuid.UUID) ([]appointment.WalletTransaction, error) {
	out := []appointment.WalletTransaction{}
	for i := len(v.st.wallet) - 1; i >= 0; i-- {
		if v.st.wallet[i].PatientID == patientID {
			out = append(out, v.st.wallet[i])
		}
	}
	return out, nil
}

func (v view) ListPayments(_ context.Context, q appointment.PaymentQuery) ([]appointment.PaymentLine, error) {
	out := []appointment.PaymentLine{}
	for _, p := range v.st.payments {
		if (!q.Since.IsZero() && p.CreatedAt.Before(q.Since)) || (!q.Until.IsZero() && !p.CreatedAt.Before(q.Until)) {
			continue
		}
		a, ok := v.st.appointments[p.AppointmentID]
		if !ok || (q.ProviderID != nil && a.ProviderID != *q.ProviderID) || (q.PatientID != nil && a.PatientID != *q.PatientID) {
			continue
		}
		out = append(out, appointment.PaymentLine{
			Payment:      p,
			PatientID:    a.PatientID,
			PatientName:  v.st.patients[a.PatientID].FullName,
			ProviderID:   a.ProviderID,
			ProviderName: v.st.providers[a.ProviderID].Name,
			Date:         a.Date,
			Time:         a.Time,
		})
	}
	slices.SortFunc(out, func(a, b appointment.PaymentLine) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (v view) TotalWalletBalance(_ context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range v.st.patients {
		total = total.Add(p.Balance)
	}
	return total, nil
}

type memTx struct {
	view
}

// The whole transaction already holds the store mutex, so locking a row is a read.

func (t *memTx) LockAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return t.GetAppointment(ctx, id)
}

func (t *memTx) LockPatient(ctx context.Context, id uuid.UUID) (*appointment.Patient, error) {
	return t.GetPatient(ctx, id)
}

func (t *memTx) InsertPatient(_ context.Context, p *appointment.Patient) error {
	t.st.patients[p.ID] = *p
	return nil
}

func (t *memTx) UpdatePatient(_ context.Context, p *appointment.Patient) error {
	if _, ok := t.st.patients[p.ID]; !ok {
		return appointment.ErrPatientNotFound
	}
	if p.Balance.IsNegative() {
		return errNegativeBalance
	}
	t.st.patients[p.ID] = *p
	return nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *appointment.Appointment) error {
	if err := t.fail("InsertAppointment"); err != nil {
		return err
	}
	if t.slotHeld(a) {
		return appointment.ErrSlotTaken
	}
	t.st.appointments[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *appointment.Appointment) error {
	if _, ok := t.st.appointments[a.ID]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	if t.slotHeld(a) {
		return appointment.ErrSlotTaken
	}
	t.st.appointments[a.ID] = *a
	return nil
}

// slotHeld reports whether another live appointment holds a's slot.
func (t *memTx) slotHeld(a *appointment.Appointment) bool {
	if a.Status == appointment.StatusCancelled {
		return false
	}
	for _, other := range t.st.appointments {
		if other.ID != a.ID &&
			other.Status != appointment.StatusCancelled &&
			other.ProviderID == a.ProviderID &&
			other.Date == a.Date &&
			other.Time == a.Time {
			return true
		}
	}
	return false
}

func (t *memTx) InsertPayment(_ context.Context, p *appointment.Payment) error {
	if err := t.fail("InsertPayment"); err != nil {
		return err
	}
	t.st.payments = append(t.st.payments, *p)
	return nil
}

func (t *memTx) InsertWalletTransaction(_ context.Context, w *appointment.WalletTransaction) error {
	t.st.wallet = append(t.st.wallet, *w)
	return nil
}

func (t *memTx) InsertHoliday(_ context.Context, h *appointment.Holiday) error {
	t.st.holidays[h.ID] = *h
	return nil
}

func (t *memTx) DeleteHoliday(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.holidays[id]; !ok {
		return appointment.ErrHolidayNotFound
	}
	delete(t.st.holidays, id)
	return nil
}

func (t *memTx) UpsertBlockedPhone(_ context.Context, b *appointment.BlockedPhone) error {
	if existing, ok := t.st.phones[b.Phone]; ok {
		existing.Reason = b.Reason
		t.st.phones[b.Phone] = existing
		return nil
	}
	t.st.phones[b.Phone] = *b
	return nil
}

func (t *memTx) DeleteBlockedPhone(_ context.Context, normalized string) error {
	delete(t.st.phones, normalized)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	if err := t.fail("InsertEvent"); err != nil {
		return err
	}
	ev.ID = int64(len(t.st.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	t.st.events = append(t.st.events, ev)
	return nil
}
