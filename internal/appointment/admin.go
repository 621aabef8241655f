package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

type BlockRequest struct {
	Login   bool
	Booking bool
	Reason  string
}

// BlockPatient sets the requested block flags. It never clears a flag; use
// UnblockPatient for that.
func (s *Service) BlockPatient(ctx context.Context, id auth.Identity, patientID uuid.UUID, req BlockRequest) (*Patient, error) {
	var out *Patient
	err := s.run(ctx, "block_patient", func(ctx context.Context) error {
		if !id.IsAdmin() {
			return forbidden(ReasonWrongRole, "only admins can block patients")
		}
		if !req.Login && !req.Booking {
			return invalid("invalid_block", "at least one of login or booking must be blocked")
		}
		return s.store.InTx(ctx, func(tx Tx) error {
			p, err := tx.LockPatient(ctx, patientID)
			if err != nil {
				return err
			}
			now := s.now().UTC()
			p.LoginBlocked = p.LoginBlocked || req.Login
			p.BookingBlocked = p.BookingBlocked || req.Booking
			if r := strings.TrimSpace(req.Reason); r != "" {
				p.BlockReason = &r
			}
			p.BlockedAt = &now
			p.UpdatedAt = now
			if err := tx.UpdatePatient(ctx, p); err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, nil, EventPatientBlocked, map[string]any{
				"patient_id": p.ID.String(),
				"login":      p.LoginBlocked,
				"booking":    p.BookingBlocked,
				"reason":     req.Reason,
				"by":         id.UserID.String(),
			}); err != nil {
				return err
			}
			out = p
			return nil
		})
	}, attribute.String("patient_id", patientID.String()))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UnblockPatient clears both flags and resets the no-show counter, so an
// auto-block does not fire again on the next no-show.
func (s *Service) UnblockPatient(ctx context.Context, id auth.Identity, patientID uuid.UUID) (*Patient, error) {
	var out *Patient
	err := s.run(ctx, "unblock_patient", func(ctx context.Context) error {
		if !id.IsAdmin() {
			return forbidden(ReasonWrongRole, "only admins can unblock patients")
		}
		return s.store.InTx(ctx, func(tx Tx) error {
			p, err := tx.LockPatient(ctx, patientID)
			if err != nil {
				return err
			}
			p.LoginBlocked = false
			p.BookingBlocked = false
			p.BlockReason = nil
			p.BlockedAt = nil
			p.NoShowCount = 0
			p.UpdatedAt = s.now().UTC()
			if err := tx.UpdatePatient(ctx, p); err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, nil, EventPatientUnblocked, map[string]any{
				"patient_id": p.ID.String(),
				"by":         id.UserID.String(),
			}); err != nil {
				return err
			}
			out = p
			return nil
		})
	}, attribute.String("patient_id", patientID.String()))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) AddBlockedPhone(ctx context.Context, id auth.Identity, phone, reason string) (*BlockedPhone, error) {
	var out *BlockedPhone
	err := s.run(ctx, "add_blocked_phone", func(ctx context.Context) error {
		if !id.IsAdmin() {
			return forbidden(ReasonWrongRole, "only admins can block phone numbers")
		}
		normalized := NormalizePhone(phone)
		if normalized == "" {
			return invalid("invalid_phone", "phone must contain digits")
		}
		b := &BlockedPhone{Phone: normalized, Reason: strings.TrimSpace(reason), CreatedAt: s.now().UTC()}
		return s.store.InTx(ctx, func(tx Tx) error {
			if err := tx.UpsertBlockedPhone(ctx, b); err != nil {
				return err
			}
			out = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) RemoveBlockedPhone(ctx context.Context, id auth.Identity, phone string) error {
	return s.run(ctx, "remove_blocked_phone", func(ctx context.Context) error {
		if !id.IsAdmin() {
			return forbidden(ReasonWrongRole, "only admins can unblock phone numbers")
		}
		normalized := NormalizePhone(phone)
		return s.store.InTx(ctx, func(tx Tx) error {
			return tx.DeleteBlockedPhone(ctx, normalized)
		})
	})
}

func (s *Service) ListBlockedPhones(ctx context.Context, id auth.Identity) ([]BlockedPhone, error) {
	var out []BlockedPhone
	err := s.run(ctx, "list_blocked_phones", func(ctx context.Context) error {
		if !id.IsStaff() {
			return forbidden(ReasonWrongRole, "only staff can list blocked phones")
		}
		phones, err := s.store.ListBlockedPhones(ctx)
		if err != nil {
			return err
		}
		out = phones
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type HolidayRequest struct {
	Date       Date
	Name       string
	Recurring  bool
	ProviderID *uuid.UUID
}

// AddHoliday stores a clinic holiday, or a provider off-day when ProviderID is
// set, and cancels every live appointment from today on that falls on it.
// Both happen in one transaction. It returns the number of cancellations.
func (s *Service) AddHoliday(ctx context.Context, id auth.Identity, req HolidayRequest) (*Holiday, int, error) {
	var (
		out       *Holiday
		cancelled int
	)
	err := s.run(ctx, "add_holiday", func(ctx context.Context) error {
		if err := authorizeHoliday(id, req.ProviderID); err != nil {
			return err
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return invalid("invalid_name", "holiday name is required")
		}
		if req.Date.IsZero() {
			return invalid("invalid_date", "holiday date is required")
		}

		return s.store.InTx(ctx, func(tx Tx) error {
			if req.ProviderID != nil {
				if _, err := tx.GetProvider(ctx, *req.ProviderID); err != nil {
					return err
				}
			}
			h := &Holiday{
				ID:         uuid.New(),
				Date:       req.Date,
				Name:       name,
				Recurring:  req.Recurring,
				ProviderID: req.ProviderID,
				CreatedAt:  s.now().UTC(),
			}
			if err := tx.InsertHoliday(ctx, h); err != nil {
				return err
			}

			today := s.today()
			n, err := s.cancelHolidayConflicts(ctx, tx, []Holiday{*h}, &today, nil, id.UserID.String())
			if err != nil {
				return err
			}
			out, cancelled = h, n
			return nil
		})
	}, attribute.String("date", req.Date.String()))
	if err != nil {
		return nil, 0, err
	}
	return out, cancelled, nil
}

func (s *Service) DeleteHoliday(ctx context.Context, id auth.Identity, holidayID uuid.UUID) error {
	return s.run(ctx, "delete_holiday", func(ctx context.Context) error {
		holidays, err := s.store.ListHolidays(ctx)
		if err != nil {
			return err
		}
		var found *Holiday
		for i := range holidays {
			if holidays[i].ID == holidayID {
				found = &holidays[i]
				break
			}
		}
		if found == nil {
			return &NotFoundError{Entity: "holiday", ID: holidayID.String()}
		}
		if err := authorizeHoliday(id, found.ProviderID); err != nil {
			return err
		}
		return s.store.InTx(ctx, func(tx Tx) error {
			return tx.DeleteHoliday(ctx, holidayID)
		})
	})
}

func (s *Service) ListHolidays(ctx context.Context) ([]Holiday, error) {
	var out []Holiday
	err := s.run(ctx, "list_holidays", func(ctx context.Context) error {
		holidays, err := s.store.ListHolidays(ctx)
		if err != nil {
			return err
		}
		out = holidays
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SweepHolidayConflicts cancels live appointments in [today, today+horizon]
// that sit on a holiday or off-day. Recurring holidays roll into a new year
// and off-days can be added after patients booked, so the off-day worker
// runs this periodically.
func (s *Service) SweepHolidayConflicts(ctx context.Context) (int, error) {
	var cancelled int
	err := s.run(ctx, "sweep_holiday_conflicts", func(ctx context.Context) error {
		holidays, err := s.store.ListHolidays(ctx)
		if err != nil {
			return err
		}
		if len(holidays) == 0 {
			return nil
		}
		today := s.today()
		until := today.AddDays(s.cfg.Clinic.BookingHorizonDays)
		return s.store.InTx(ctx, func(tx Tx) error {
			n, err := s.cancelHolidayConflicts(ctx, tx, holidays, &today, &until, "offday-worker")
			cancelled = n
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	if cancelled > 0 {
		s.log.Info("holiday sweep cancelled appointments", zap.Int("count", cancelled))
	}
	return cancelled, nil
}

func (s *Service) cancelHolidayConflicts(ctx context.Context, tx Tx, holidays []Holiday, from, to *Date, by string) (int, error) {
	live, err := tx.ListAppointments(ctx, AppointmentQuery{
		From:     from,
		To:       to,
		Statuses: []Status{StatusScheduled, StatusCheckedIn},
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, a := range live {
		h, off := holidayOn(holidays, a.Date, a.ProviderID)
		if !off {
			continue
		}
		appt, err := tx.LockAppointment(ctx, a.ID)
		if err != nil {
			return count, err
		}
		if appt.Status.Terminal() {
			continue
		}
		from := appt.Status
		appt.Status = StatusCancelled
		appt.CancelReason = ptr("Holiday: " + h.Name)
		appt.UpdatedAt = s.now().UTC()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return count, err
		}
		if err := s.logEvent(ctx, tx, &appt.ID, EventHolidayCancelled, map[string]any{
			"holiday_id": h.ID.String(),
			"holiday":    h.Name,
			"from":       string(from),
			"by":         by,
		}); err != nil {
			return count, err
		}
		s.metrics.ObserveTransition(string(EventCancel), "holiday")
		count++
	}
	return count, nil
}

// authorizeHoliday lets admins manage every holiday. Secretaries and the
// doctor concerned may manage provider off-days.
func authorizeHoliday(id auth.Identity, providerID *uuid.UUID) error {
	if id.IsAdmin() {
		return nil
	}
	if providerID != nil && (id.IsStaff() || id.ActsForProvider(*providerID)) {
		return nil
	}
	return forbidden(ReasonWrongRole, "role cannot manage this holiday")
}
