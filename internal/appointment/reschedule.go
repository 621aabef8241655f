package appointment

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

type RescheduleRequest struct {
	Date Date
	Time Clock
}

// Reschedule moves an appointment to a new slot in one update, so the old
// slot is freed and the new one claimed together. On a conflict the
// appointment stays where it was. Id, payment state and price are kept.
func (s *Service) Reschedule(ctx context.Context, id auth.Identity, appointmentID uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	var updated *Appointment
	err := s.run(ctx, "reschedule", func(ctx context.Context) error {
		current, err := s.store.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := authorizeAppointment(id, current); err != nil {
			return err
		}
		provider, err := s.store.GetProvider(ctx, current.ProviderID)
		if err != nil {
			return err
		}

		key := SlotKey(provider.ID, req.Date, req.Time)
		return s.withSlotLock(ctx, key, func(ctx context.Context) error {
			return s.store.InTx(ctx, func(tx Tx) error {
				appt, err := tx.LockAppointment(ctx, appointmentID)
				if err != nil {
					return err
				}

				from := appt.Status
				to, err := Next(from, EventReschedule, id)
				if err != nil {
					return err
				}
				if appt.Date == req.Date && appt.Time == req.Time {
					return invalid("same_slot", "appointment is already at %s %s", req.Date, req.Time)
				}

				if id.Role == auth.RolePatient {
					if err := s.checkCancellationWindow(appt); err != nil {
						return err
					}
					patient, err := tx.GetPatient(ctx, appt.PatientID)
					if err != nil {
						return err
					}
					if err := checkAccess(ctx, tx, patient, "", ActionBook); err != nil {
						return err
					}
				}
				if err := s.validateSlot(ctx, tx, provider, req.Date, req.Time, KindBooking); err != nil {
					return err
				}

				oldDate, oldTime := appt.Date, appt.Time
				appt.Date = req.Date
				appt.Time = req.Time
				appt.Status = to
				appt.UpdatedAt = s.now().UTC()
				if err := tx.UpdateAppointment(ctx, appt); err != nil {
					return err
				}

				if err := s.logEvent(ctx, tx, &appt.ID, EventAppointmentRescheduled, map[string]any{
					"from_date":   oldDate.String(),
					"from_time":   oldTime.String(),
					"to_date":     appt.Date.String(),
					"to_time":     appt.Time.String(),
					"from_status": string(from),
					"by":          id.UserID.String(),
				}); err != nil {
					return err
				}

				updated = appt
				return nil
			})
		})
	}, attribute.String("appointment_id", appointmentID.String()))

	s.metrics.ObserveBooking("reschedule", outcomeOf(err))
	if err != nil {
		return nil, err
	}
	return updated, nil
}
