package appointment

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

type Event string

const (
	EventCheckIn     Event = "check_in"
	EventUndoCheckIn Event = "undo_check_in"
	EventCancel      Event = "cancel"
	EventNoShow      Event = "no_show"
	EventComplete    Event = "complete"
	EventReschedule  Event = "reschedule"
)

type transitionKey struct {
	from  Status
	event Event
}

type transitionRule struct {
	to    Status
	roles []auth.Role
}

// transitions is the full permission table. A pair missing from it is an
// illegal transition; terminal states have no rows.
var transitions = map[transitionKey]transitionRule{
	{StatusScheduled, EventCheckIn}:     {StatusCheckedIn, []auth.Role{auth.RoleSecretary}},
	{StatusScheduled, EventCancel}:      {StatusCancelled, []auth.Role{auth.RolePatient, auth.RoleSecretary}},
	{StatusCheckedIn, EventUndoCheckIn}: {StatusScheduled, []auth.Role{auth.RoleSecretary}},
	{StatusCheckedIn, EventNoShow}:      {StatusNoShow, []auth.Role{auth.RoleSecretary}},
	{StatusCheckedIn, EventComplete}:    {StatusDone, []auth.Role{auth.RoleSecretary}},
	{StatusScheduled, EventReschedule}:  {StatusScheduled, []auth.Role{auth.RolePatient, auth.RoleSecretary}},
	{StatusCheckedIn, EventReschedule}:  {StatusScheduled, []auth.Role{auth.RolePatient, auth.RoleSecretary}},
}

// Next returns the state reached from `from` by ev when the caller may trigger it.
// Legality is checked before the role, so a terminal appointment always
// reports InvalidTransitionError.
func Next(from Status, ev Event, id auth.Identity) (Status, error) {
	rule, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return "", &InvalidTransitionError{From: from, Event: ev}
	}
	if !id.HasAny(rule.roles...) {
		return "", forbidden(ReasonWrongRole, fmt.Sprintf("role %s cannot %s", id.Role, ev))
	}
	return rule.to, nil
}

// eventFor maps a requested target status onto the event that reaches it.
func eventFor(target Status) (Event, error) {
	switch target {
	case StatusCheckedIn:
		return EventCheckIn, nil
	case StatusScheduled:
		return EventUndoCheckIn, nil
	case StatusCancelled:
		return EventCancel, nil
	case StatusNoShow:
		return EventNoShow, nil
	case StatusDone:
		return EventComplete, nil
	default:
		return "", invalid("invalid_status", "unknown status %q", target)
	}
}

type TransitionRequest struct {
	Status     Status
	Reason     *string
	FinalPrice *decimal.Decimal
}

// Transition moves an appointment to req.Status. FinalPrice is only accepted
// when completing a visit.
func (s *Service) Transition(ctx context.Context, id auth.Identity, appointmentID uuid.UUID, req TransitionRequest) (*Appointment, error) {
	event, err := eventFor(req.Status)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.run(ctx, "transition", func(ctx context.Context) error {
		reason, err := cleanReason(req.Reason)
		if err != nil {
			return err
		}

		return s.store.InTx(ctx, func(tx Tx) error {
			appt, err := tx.LockAppointment(ctx, appointmentID)
			if err != nil {
				return err
			}
			if err := authorizeAppointment(id, appt); err != nil {
				return err
			}

			from := appt.Status
			to, err := Next(from, event, id)
			if err != nil {
				return err
			}
			if req.FinalPrice != nil {
				if event != EventComplete {
					return invalid("invalid_final_price", "final_price is only accepted when completing a visit")
				}
				if err := checkPrice(req.FinalPrice); err != nil {
					return err
				}
			}

			switch event {
			case EventCancel:
				if id.Role == auth.RolePatient {
					if err := s.checkCancellationWindow(appt); err != nil {
						return err
					}
				}
				if reason == nil {
					reason = ptr("cancelled by " + string(id.Role))
				}
				appt.CancelReason = reason
			case EventComplete:
				if req.FinalPrice != nil {
					if err := setFinalPrice(appt, *req.FinalPrice); err != nil {
						return err
					}
				}
			}

			appt.Status = to
			appt.UpdatedAt = s.now().UTC()
			if err := tx.UpdateAppointment(ctx, appt); err != nil {
				return err
			}

			if event == EventNoShow {
				if err := s.recordNoShow(ctx, tx, id, appt); err != nil {
					return err
				}
			}

			payload := map[string]any{
				"from":  string(from),
				"to":    string(to),
				"event": string(event),
				"by":    id.UserID.String(),
			}
			if reason != nil {
				payload["reason"] = *reason
			}
			if err := s.logEvent(ctx, tx, &appt.ID, EventAppointmentTransition, payload); err != nil {
				return err
			}

			updated = appt
			return nil
		})
	}, attribute.String("appointment_id", appointmentID.String()), attribute.String("event", string(event)))

	s.metrics.ObserveTransition(string(event), outcomeOf(err))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel is Transition to Cancelled. Patients must cancel earlier than the
// configured window before the visit; staff are not bound by it.
func (s *Service) Cancel(ctx context.Context, id auth.Identity, appointmentID uuid.UUID, reason *string) (*Appointment, error) {
	return s.Transition(ctx, id, appointmentID, TransitionRequest{Status: StatusCancelled, Reason: reason})
}

func (s *Service) checkCancellationWindow(appt *Appointment) error {
	until := appt.StartsAt(s.loc()).Sub(s.now())
	if until <= s.cfg.Clinic.CancellationWindow {
		return &PolicyViolation{
			Code: "cancellation_window",
			Msg:  fmt.Sprintf("appointments can only be changed more than %s before they start", s.cfg.Clinic.CancellationWindow),
		}
	}
	return nil
}

// recordNoShow bumps the patient's counter and blocks login and booking once
// it reaches the configured threshold.
func (s *Service) recordNoShow(ctx context.Context, tx Tx, id auth.Identity, appt *Appointment) error {
	patient, err := tx.LockPatient(ctx, appt.PatientID)
	if err != nil {
		return err
	}
	patient.NoShowCount++
	now := s.now().UTC()
	patient.UpdatedAt = now

	threshold := s.cfg.Clinic.NoShowBlockThreshold
	blocking := threshold > 0 && patient.NoShowCount >= threshold && !(patient.LoginBlocked && patient.BookingBlocked)
	if blocking {
		patient.LoginBlocked = true
		patient.BookingBlocked = true
		patient.BlockReason = ptr(fmt.Sprintf("auto-blocked after %d no-shows", patient.NoShowCount))
		patient.BlockedAt = &now
	}

	if err := tx.UpdatePatient(ctx, patient); err != nil {
		return err
	}
	if blocking {
		return s.logEvent(ctx, tx, &appt.ID, EventPatientBlocked, map[string]any{
			"patient_id":    patient.ID.String(),
			"no_show_count": patient.NoShowCount,
			"reason":        *patient.BlockReason,
			"by":            id.UserID.String(),
		})
	}
	return nil
}

// authorizeAppointment restricts patients to their own appointments and
// doctors to their own schedule. Staff see everything.
func authorizeAppointment(id auth.Identity, appt *Appointment) error {
	switch {
	case id.IsStaff():
		return nil
	case id.Role == auth.RolePatient:
		if id.OwnsPatient(appt.PatientID) {
			return nil
		}
	case id.Role == auth.RoleDoctor:
		if id.ActsForProvider(appt.ProviderID) {
			return nil
		}
	}
	return forbidden(ReasonNotOwner, "appointment belongs to someone else")
}

func cleanReason(reason *string) (*string, error) {
	if reason == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*reason)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxReasonLen {
		return nil, invalid("reason_too_long", "reason must be at most %d characters", maxReasonLen)
	}
	return &trimmed, nil
}
