package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentQuery struct {
	ProviderID       *uuid.UUID
	PatientID        *uuid.UUID
	From             *Date // inclusive
	To               *Date // inclusive
	Statuses         []Status
	ExcludeCancelled bool
	PaymentStatus    *PaymentStatus
	Descending       bool
	Limit            int
	Offset           int
}

// PaymentQuery filters payments. A zero Since or Until leaves that end open.
type PaymentQuery struct {
	Since      time.Time
	Until      time.Time // exclusive
	ProviderID *uuid.UUID
	PatientID  *uuid.UUID
}

// Reader holds the non-transactional reads. Dashboards use these directly and
// may see slightly stale data.
type Reader interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, q AppointmentQuery) ([]Appointment, error)
	ListHolidays(ctx context.Context) ([]Holiday, error)
	IsPhoneBlocked(ctx context.Context, normalized string) (bool, error)
	ListBlockedPhones(ctx context.Context) ([]BlockedPhone, error)
	ListWalletTransactions(ctx context.Context, patientID uuid.UUID) ([]WalletTransaction, error)
	ListPayments(ctx context.Context, q PaymentQuery) ([]PaymentLine, error)
	TotalWalletBalance(ctx context.Context) (decimal.Decimal, error)
}

// Tx is a unit of work. Rows returned by the Lock methods stay locked until
// the transaction ends.
type Tx interface {
	Reader

	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	LockPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	InsertPatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error

	// InsertAppointment and UpdateAppointment return ErrSlotTaken when another
	// live appointment already holds the provider slot.
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error

	InsertPayment(ctx context.Context, p *Payment) error
	InsertWalletTransaction(ctx context.Context, w *WalletTransaction) error

	InsertHoliday(ctx context.Context, h *Holiday) error
	DeleteHoliday(ctx context.Context, id uuid.UUID) error
	UpsertBlockedPhone(ctx context.Context, b *BlockedPhone) error
	DeleteBlockedPhone(ctx context.Context, normalized string) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Store runs fn in a transaction that commits when fn returns nil and rolls
// back on any error or panic.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
