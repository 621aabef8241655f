package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCheckedIn Status = "checked_in"
	StatusCancelled Status = "cancelled"
	StatusDone      Status = "done"
	StatusNoShow    Status = "no_show"
)

// Terminal states accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDone || s == StatusNoShow
}

// ParseStatus accepts the stored names plus "waiting", which front desk
// screens use for checked-in patients.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scheduled":
		return StatusScheduled, nil
	case "checked_in", "checkedin", "waiting":
		return StatusCheckedIn, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "done", "completed":
		return StatusDone, nil
	case "no_show", "noshow":
		return StatusNoShow, nil
	default:
		return "", &ValidationError{Code: "invalid_status", Msg: fmt.Sprintf("unknown status %q", s)}
	}
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentUnpaid:
		return PaymentUnpaid, nil
	case PaymentPaid:
		return PaymentPaid, nil
	default:
		return "", &ValidationError{Code: "invalid_payment_status", Msg: fmt.Sprintf("unknown payment status %q", s)}
	}
}

type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodCard    PaymentMethod = "card"
	MethodBalance PaymentMethod = "balance"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case MethodCash:
		return MethodCash, nil
	case MethodCard:
		return MethodCard, nil
	case MethodBalance:
		return MethodBalance, nil
	default:
		return "", &ValidationError{Code: "invalid_method", Msg: fmt.Sprintf("unknown payment method %q", s)}
	}
}

type Kind string

const (
	KindBooking Kind = "booking"
	KindWalkIn  Kind = "walk_in"
)

type WalletTxKind string

const (
	WalletDeposit WalletTxKind = "deposit"
	WalletPayment WalletTxKind = "payment"
	WalletCredit  WalletTxKind = "credit"
)

// WorkingHours is one weekday of a provider's template. Slots start at Open
// and the last one starts before Close.
type WorkingHours struct {
	Weekday time.Weekday
	Open    Clock
	Close   Clock
}

type Provider struct {
	ID           uuid.UUID
	Name         string
	Specialty    *string
	SlotMinutes  int
	DefaultPrice decimal.Decimal
	Hours        []WorkingHours
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p *Provider) HoursOn(wd time.Weekday) (WorkingHours, bool) {
	for _, h := range p.Hours {
		if h.Weekday == wd {
			return h, true
		}
	}
	return WorkingHours{}, false
}

// SlotsOn lists every slot start on d, or nil when the provider does not work that weekday.
func (p *Provider) SlotsOn(d Date) []Clock {
	h, ok := p.HoursOn(d.Weekday())
	if !ok || p.SlotMinutes <= 0 {
		return nil
	}
	var out []Clock
	for c := h.Open; c.Add(p.SlotMinutes) <= h.Close; c = c.Add(p.SlotMinutes) {
		out = append(out, c)
	}
	return out
}

// Aligned reports whether c is a valid slot start on d.
func (p *Provider) Aligned(d Date, c Clock) (inHours bool, aligned bool) {
	h, ok := p.HoursOn(d.Weekday())
	if !ok || c < h.Open || c.Add(p.SlotMinutes) > h.Close {
		return false, false
	}
	return true, (int(c-h.Open))%p.SlotMinutes == 0
}

type Patient struct {
	ID              uuid.UUID
	FullName        string
	Phone           string
	NormalizedPhone string
	Email           *string
	Balance         decimal.Decimal
	NoShowCount     int
	LoginBlocked    bool
	BookingBlocked  bool
	BlockReason     *string
	BlockedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	PatientID     uuid.UUID
	Date          Date
	Time          Clock
	Status        Status
	PaymentStatus PaymentStatus
	Price         decimal.Decimal
	FinalPrice    *decimal.Decimal
	Notes         *string
	CancelReason  *string
	Kind          Kind
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AmountDue is the final price when one was set, otherwise the list price.
func (a *Appointment) AmountDue() decimal.Decimal {
	if a.FinalPrice != nil {
		return *a.FinalPrice
	}
	return a.Price
}

// StartsAt is the appointment instant in the clinic location.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return At(a.Date, a.Time, loc)
}

// SlotKey identifies a provider slot for locking.
func SlotKey(providerID uuid.UUID, d Date, c Clock) string {
	return providerID.String() + ":" + d.String() + ":" + c.String()
}

// Holiday blocks a date for everyone, or only for ProviderID when set (an off-day).
// A recurring holiday matches the same month and day in every year.
type Holiday struct {
	ID         uuid.UUID
	Date       Date
	Name       string
	Recurring  bool
	ProviderID *uuid.UUID
	CreatedAt  time.Time
}

func (h Holiday) Matches(d Date, providerID uuid.UUID) bool {
	if h.ProviderID != nil && *h.ProviderID != providerID {
		return false
	}
	if h.Recurring {
		return h.Date.Month == d.Month && h.Date.Day == d.Day
	}
	return h.Date == d
}

type BlockedPhone struct {
	Phone     string
	Reason    string
	CreatedAt time.Time
}

type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Method        PaymentMethod
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
}

// WalletTransaction amounts are signed: deposits and credits are positive,
// balance payments negative.
type WalletTransaction struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	Amount        decimal.Decimal
	Kind          WalletTxKind
	Description   string
	AppointmentID *uuid.UUID
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient  *Patient
	Provider *Provider
}

type TimeSlot struct {
	Time        Clock
	Display     string
	IsAvailable bool
}

type FinancialSummary struct {
	PatientID        *uuid.UUID
	TotalPaid        decimal.Decimal
	TotalUnpaid      decimal.Decimal
	RemainingBalance decimal.Decimal
	WalletBalance    decimal.Decimal
}

// PaymentLine is a settled payment joined with who it was for.
type PaymentLine struct {
	Payment
	PatientID    uuid.UUID
	PatientName  string
	ProviderID   uuid.UUID
	ProviderName string
	Date         Date
	Time         Clock
}

type PaymentReport struct {
	From       Date
	To         Date
	Lines      []PaymentLine
	Total      decimal.Decimal
	Count      int
	Average    decimal.Decimal
	ByMethod   map[PaymentMethod]decimal.Decimal
	ByProvider map[uuid.UUID]decimal.Decimal
}
