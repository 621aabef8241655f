package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const liveSlotConstraint = "uq_appointments_live_slot"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so reads are written
// once and shared by the store and its transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	queries
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{queries: queries{q: pool}, pool: pool}
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	rollback := func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(&pgTx{queries: queries{q: tx}}); err != nil {
		rollback()
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", translateWriteErr(err))
	}
	return nil
}

// SaveProvider upserts a provider with its working-hour template. Provider
// records are owned by the admin side; the seed tool is the only caller.
func (s *PgStore) SaveProvider(ctx context.Context, p *Provider) error {
	return s.InTx(ctx, func(t Tx) error {
		q := t.(*pgTx).q
		if _, err := q.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, slot_minutes, default_price, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				specialty = EXCLUDED.specialty,
				slot_minutes = EXCLUDED.slot_minutes,
				default_price = EXCLUDED.default_price,
				updated_at = EXCLUDED.updated_at
		`, p.ID, p.Name, p.Specialty, p.SlotMinutes, p.DefaultPrice, p.CreatedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("upsert provider: %w", err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM provider_working_hours WHERE provider_id = $1`, p.ID); err != nil {
			return fmt.Errorf("clear working hours: %w", err)
		}
		for _, h := range p.Hours {
			if _, err := q.Exec(ctx, `
				INSERT INTO provider_working_hours (provider_id, weekday, open_time, close_time)
				VALUES ($1, $2, $3, $4)
			`, p.ID, int(h.Weekday), clockParam(h.Open), clockParam(h.Close)); err != nil {
				return fmt.Errorf("insert working hours: %w", err)
			}
		}
		return nil
	})
}

type pgTx struct {
	queries
}

type queries struct {
	q querier
}

// Helpers

func clockParam(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func clockFrom(t pgtype.Time) Clock {
	return Clock(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func dateParam(d Date) time.Time {
	return d.In(time.UTC)
}

func openEnded(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func translateWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == liveSlotConstraint {
		return ErrSlotTaken
	}
	return err
}

const providerColumns = `id, name, specialty, slot_minutes, default_price, created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.SlotMinutes, &p.DefaultPrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

const patientColumns = `id, full_name, phone, normalized_phone, email, balance, no_show_count,
	login_blocked, booking_blocked, block_reason, blocked_at, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.FullName,
		&p.Phone,
		&p.NormalizedPhone,
		&p.Email,
		&p.Balance,
		&p.NoShowCount,
		&p.LoginBlocked,
		&p.BookingBlocked,
		&p.BlockReason,
		&p.BlockedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

const appointmentColumns = `id, provider_id, patient_id, appointment_date, appointment_time, status,
	payment_status, price, final_price, notes, cancel_reason, kind, created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		date       time.Time
		clock      pgtype.Time
		finalPrice decimal.NullDecimal
	)
	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&date,
		&clock,
		&a.Status,
		&a.PaymentStatus,
		&a.Price,
		&finalPrice,
		&a.Notes,
		&a.CancelReason,
		&a.Kind,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOf(date)
	a.Time = clockFrom(clock)
	if finalPrice.Valid {
		a.FinalPrice = &finalPrice.Decimal
	}
	return &a, nil
}

func scanHoliday(row pgx.Row) (*Holiday, error) {
	var (
		h    Holiday
		date time.Time
	)
	if err := row.Scan(&h.ID, &date, &h.Name, &h.Recurring, &h.ProviderID, &h.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHolidayNotFound
		}
		return nil, err
	}
	h.Date = DateOf(date)
	return &h, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Reader

func (r queries) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := scanProvider(r.q.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	hours, err := r.workingHours(ctx, &id)
	if err != nil {
		return nil, err
	}
	p.Hours = hours[id]
	return p, nil
}

func (r queries) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.q.Query(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	providers, err := collect(rows, scanProvider)
	if err != nil {
		return nil, fmt.Errorf("scan providers: %w", err)
	}
	hours, err := r.workingHours(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range providers {
		providers[i].Hours = hours[providers[i].ID]
	}
	return providers, nil
}

func (r queries) workingHours(ctx context.Context, providerID *uuid.UUID) (map[uuid.UUID][]WorkingHours, error) {
	rows, err := r.q.Query(ctx, `
		SELECT provider_id, weekday, open_time, close_time
		FROM provider_working_hours
		WHERE $1::uuid IS NULL OR provider_id = $1
		ORDER BY provider_id, weekday
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list working hours: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]WorkingHours)
	for rows.Next() {
		var (
			pid           uuid.UUID
			weekday       int16
			opens, closes pgtype.Time
		)
		if err := rows.Scan(&pid, &weekday, &opens, &closes); err != nil {
			return nil, fmt.Errorf("scan working hours: %w", err)
		}
		out[pid] = append(out[pid], WorkingHours{
			Weekday: time.Weekday(weekday),
			Open:    clockFrom(opens),
			Close:   clockFrom(closes),
		})
	}
	return out, rows.Err()
}

func (r queries) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.q.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

func (r queries) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (r queries) ListAppointments(ctx context.Context, q AppointmentQuery) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if q.ProviderID != nil {
		add("provider_id = $%d", *q.ProviderID)
	}
	if q.PatientID != nil {
		add("patient_id = $%d", *q.PatientID)
	}
	if q.From != nil {
		add("appointment_date >= $%d", dateParam(*q.From))
	}
	if q.To != nil {
		add("appointment_date <= $%d", dateParam(*q.To))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if q.ExcludeCancelled {
		where = append(where, "status <> 'cancelled'")
	}
	if q.PaymentStatus != nil {
		add("payment_status = $%d", string(*q.PaymentStatus))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + appointmentColumns + ` FROM appointments`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.Descending {
		sb.WriteString(" ORDER BY appointment_date DESC, appointment_time DESC")
	} else {
		sb.WriteString(" ORDER BY appointment_date, appointment_time")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := r.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	out, err := collect(rows, scanAppointment)
	if err != nil {
		return nil, fmt.Errorf("scan appointments: %w", err)
	}
	return out, nil
}

func (r queries) ListHolidays(ctx context.Context) ([]Holiday, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, holiday_date, name, recurring, provider_id, created_at
		FROM holidays
		ORDER BY holiday_date
	`)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	out, err := collect(rows, scanHoliday)
	if err != nil {
		return nil, fmt.Errorf("scan holidays: %w", err)
	}
	return out, nil
}

func (r queries) IsPhoneBlocked(ctx context.Context, normalized string) (bool, error) {
	var blocked bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocked_phones WHERE normalized_phone = $1)`,
		normalized,
	).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check blocked phone: %w", err)
	}
	return blocked, nil
}

func (r queries) ListBlockedPhones(ctx context.Context) ([]BlockedPhone, error) {
	rows, err := r.q.Query(ctx, `SELECT normalized_phone, reason, created_at FROM blocked_phones ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list blocked phones: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (BlockedPhone, error) {
		var b BlockedPhone
		err := row.Scan(&b.Phone, &b.Reason, &b.CreatedAt)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan blocked phones: %w", err)
	}
	return out, nil
}

func (r queries) ListWalletTransactions(ctx context.Context, patientID uuid.UUID) ([]WalletTransaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, patient_id, amount, kind, description, appointment_id, created_by, created_at
		FROM wallet_transactions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (WalletTransaction, error) {
		var w WalletTransaction
		err := row.Scan(&w.ID, &w.PatientID, &w.Amount, &w.Kind, &w.Description, &w.AppointmentID, &w.CreatedBy, &w.CreatedAt)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan wallet transactions: %w", err)
	}
	return out, nil
}

func (r queries) ListPayments(ctx context.Context, q PaymentQuery) ([]PaymentLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT p.id, p.appointment_id, p.amount, p.method, p.created_by, p.created_at,
		       a.patient_id, pa.full_name, a.provider_id, pr.name, a.appointment_date, a.appointment_time
		FROM payments p
		JOIN appointments a ON a.id = p.appointment_id
		JOIN patients pa ON pa.id = a.patient_id
		JOIN providers pr ON pr.id = a.provider_id
		WHERE ($1::timestamptz IS NULL OR p.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR p.created_at < $2)
		  AND ($3::uuid IS NULL OR a.provider_id = $3)
		  AND ($4::uuid IS NULL OR a.patient_id = $4)
		ORDER BY p.created_at
	`, openEnded(q.Since), openEnded(q.Until), q.ProviderID, q.PatientID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PaymentLine, error) {
		var (
			l     PaymentLine
			date  time.Time
			clock pgtype.Time
		)
		err := row.Scan(
			&l.ID, &l.AppointmentID, &l.Amount, &l.Method, &l.CreatedBy, &l.CreatedAt,
			&l.PatientID, &l.PatientName, &l.ProviderID, &l.ProviderName, &date, &clock,
		)
		l.Date = DateOf(date)
		l.Time = clockFrom(clock)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return out, nil
}

func (r queries) TotalWalletBalance(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM patients`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum wallet balances: %w", err)
	}
	return total, nil
}

// Tx

func (t *pgTx) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(t.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) LockPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(t.q.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertPatient(ctx context.Context, p *Patient) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO patients (id, full_name, phone, normalized_phone, email, balance, no_show_count,
			login_blocked, booking_blocked, block_reason, blocked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.FullName, p.Phone, p.NormalizedPhone, p.Email, p.Balance, p.NoShowCount,
		p.LoginBlocked, p.BookingBlocked, p.BlockReason, p.BlockedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (t *pgTx) UpdatePatient(ctx context.Context, p *Patient) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE patients
		SET full_name = $2, phone = $3, normalized_phone = $4, email = $5, balance = $6,
		    no_show_count = $7, login_blocked = $8, booking_blocked = $9, block_reason = $10,
		    blocked_at = $11, updated_at = $12
		WHERE id = $1
	`, p.ID, p.FullName, p.Phone, p.NormalizedPhone, p.Email, p.Balance,
		p.NoShowCount, p.LoginBlocked, p.BookingBlocked, p.BlockReason, p.BlockedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, appointment_date, appointment_time, status,
			payment_status, price, final_price, notes, cancel_reason, kind, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.ID, a.ProviderID, a.PatientID, dateParam(a.Date), clockParam(a.Time), string(a.Status),
		string(a.PaymentStatus), a.Price, a.FinalPrice, a.Notes, a.CancelReason, string(a.Kind),
		a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if errors.Is(translateWriteErr(err), ErrSlotTaken) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a *Appointment) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $2, appointment_time = $3, status = $4, payment_status = $5,
		    final_price = $6, notes = $7, cancel_reason = $8, updated_at = $9
		WHERE id = $1
	`, a.ID, dateParam(a.Date), clockParam(a.Time), string(a.Status), string(a.PaymentStatus),
		a.FinalPrice, a.Notes, a.CancelReason, a.UpdatedAt)
	if err != nil {
		if errors.Is(translateWriteErr(err), ErrSlotTaken) {
			return ErrSlotTaken
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p *Payment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO payments (id, appointment_id, amount, method, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.AppointmentID, p.Amount, string(p.Method), p.CreatedBy, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (t *pgTx) InsertWalletTransaction(ctx context.Context, w *WalletTransaction) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO wallet_transactions (id, patient_id, amount, kind, description, appointment_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, w.ID, w.PatientID, w.Amount, string(w.Kind), w.Description, w.AppointmentID, w.CreatedBy, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (t *pgTx) InsertHoliday(ctx context.Context, h *Holiday) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO holidays (id, holiday_date, name, recurring, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.ID, dateParam(h.Date), h.Name, h.Recurring, h.ProviderID, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert holiday: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteHoliday(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM holidays WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete holiday: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHolidayNotFound
	}
	return nil
}

func (t *pgTx) UpsertBlockedPhone(ctx context.Context, b *BlockedPhone) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO blocked_phones (normalized_phone, reason, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized_phone) DO UPDATE SET reason = EXCLUDED.reason
	`, b.Phone, b.Reason, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert blocked phone: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteBlockedPhone(ctx context.Context, normalized string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM blocked_phones WHERE normalized_phone = $1`, normalized); err != nil {
		return fmt.Errorf("delete blocked phone: %w", err)
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.AppointmentID, payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
