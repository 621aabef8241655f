package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError rejects malformed input before any state change.
type ValidationError struct {
	Code string
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// ConflictError is returned at commit time. Callers should refresh and retry
// with new input, never with the same input.
type ConflictError struct {
	Code string
	Msg  string
}

func (e *ConflictError) Error() string { return e.Msg }

var (
	ErrSlotTaken   = &ConflictError{Code: "slot_taken", Msg: "time slot is already booked"}
	ErrAlreadyPaid = &ConflictError{Code: "already_paid", Msg: "appointment is already paid"}
)

const (
	ReasonLoginBlocked   = "login_blocked"
	ReasonBookingBlocked = "booking_blocked"
	ReasonPhoneBlocked   = "phone_blocked"
	ReasonWrongRole      = "wrong_role"
	ReasonNotOwner       = "not_owner"
)

type ForbiddenError struct {
	Reason string
	Msg    string
}

func (e *ForbiddenError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "forbidden: " + e.Reason
}

func forbidden(reason, msg string) *ForbiddenError {
	return &ForbiddenError{Reason: reason, Msg: msg}
}

// PolicyViolation is a time-window rule, kept apart from ForbiddenError so
// clients can tell the patient why.
type PolicyViolation struct {
	Code string
	Msg  string
}

func (e *PolicyViolation) Error() string { return e.Msg }

type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an appointment in status %s", e.Event, e.From)
}

type InsufficientBalanceError struct {
	Balance decimal.Decimal
	Amount  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, need %s", e.Balance.StringFixed(2), e.Amount.StringFixed(2))
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return e.Op + ": timed out" }

// InternalError wraps infrastructure failures so they are never mistaken for
// a business rule.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *InternalError) Unwrap() error { return e.Err }

// Store level not-found sentinels. classify turns them into *NotFoundError.
var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrHolidayNotFound     = errors.New("holiday not found")
)

// classify passes domain errors through and maps everything else onto
// TimeoutError or InternalError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		ve  *ValidationError
		ce  *ConflictError
		fe  *ForbiddenError
		pv  *PolicyViolation
		ite *InvalidTransitionError
		ibe *InsufficientBalanceError
		nfe *NotFoundError
		te  *TimeoutError
		ie  *InternalError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ce), errors.As(err, &fe), errors.As(err, &pv),
		errors.As(err, &ite), errors.As(err, &ibe), errors.As(err, &nfe), errors.As(err, &te), errors.As(err, &ie):
		return err
	case errors.Is(err, ErrProviderNotFound):
		return &NotFoundError{Entity: "provider"}
	case errors.Is(err, ErrPatientNotFound):
		return &NotFoundError{Entity: "patient"}
	case errors.Is(err, ErrAppointmentNotFound):
		return &NotFoundError{Entity: "appointment"}
	case errors.Is(err, ErrHolidayNotFound):
		return &NotFoundError{Entity: "holiday"}
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{Op: op}
	default:
		return &InternalError{Op: op, Err: err}
	}
}
