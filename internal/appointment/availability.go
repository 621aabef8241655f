package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const maxHorizonDays = 366

// AvailableDates lists the dates in [from, from+horizonDays] with at least one
// open slot. A zero or past from starts at today.
func (s *Service) AvailableDates(ctx context.Context, providerID uuid.UUID, from Date, horizonDays int) ([]Date, error) {
	if horizonDays <= 0 {
		horizonDays = s.cfg.Clinic.BookingHorizonDays
	}
	if horizonDays > maxHorizonDays {
		return nil, invalid("invalid_horizon", "horizon must be at most %d days", maxHorizonDays)
	}

	var out []Date
	err := s.run(ctx, "available_dates", func(ctx context.Context) error {
		today := s.today()
		if from.IsZero() || from.Before(today) {
			from = today
		}
		to := from.AddDays(horizonDays)

		provider, err := s.store.GetProvider(ctx, providerID)
		if err != nil {
			return err
		}
		holidays, err := s.store.ListHolidays(ctx)
		if err != nil {
			return err
		}
		booked, err := s.store.ListAppointments(ctx, AppointmentQuery{
			ProviderID:       &providerID,
			From:             &from,
			To:               &to,
			ExcludeCancelled: true,
		})
		if err != nil {
			return err
		}
		taken := takenSlots(booked)

		now := s.now()
		out = []Date{}
		for d := from; !d.After(to); d = d.AddDays(1) {
			if _, off := holidayOn(holidays, d, providerID); off {
				continue
			}
			for _, c := range provider.SlotsOn(d) {
				if s.slotOpen(d, c, taken, now) {
					out = append(out, d)
					break
				}
			}
		}
		return nil
	}, attribute.String("provider_id", providerID.String()))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TimeSlots covers the provider's whole working window on date. Holidays,
// off-days and non-working weekdays give an empty list.
func (s *Service) TimeSlots(ctx context.Context, providerID uuid.UUID, date Date) ([]TimeSlot, error) {
	var out []TimeSlot
	err := s.run(ctx, "time_slots", func(ctx context.Context) error {
		provider, err := s.store.GetProvider(ctx, providerID)
		if err != nil {
			return err
		}
		holidays, err := s.store.ListHolidays(ctx)
		if err != nil {
			return err
		}

		out = []TimeSlot{}
		if _, off := holidayOn(holidays, date, providerID); off {
			return nil
		}

		booked, err := s.store.ListAppointments(ctx, AppointmentQuery{
			ProviderID:       &providerID,
			From:             &date,
			To:               &date,
			ExcludeCancelled: true,
		})
		if err != nil {
			return err
		}
		taken := takenSlots(booked)

		now := s.now()
		for _, c := range provider.SlotsOn(date) {
			out = append(out, TimeSlot{
				Time:        c,
				Display:     c.Display(),
				IsAvailable: s.slotOpen(date, c, taken, now),
			})
		}
		return nil
	}, attribute.String("provider_id", providerID.String()), attribute.String("date", date.String()))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// validateSlot checks that (date, time) is a bookable slot start for provider:
// not in the past, inside working hours, aligned, and not a holiday.
// Occupancy is left to the store's uniqueness rule at commit. A walk-in may
// take the slot that is already under way.
func (s *Service) validateSlot(ctx context.Context, r Reader, provider *Provider, d Date, c Clock, kind Kind) error {
	cutoff := At(d, c, s.loc())
	if kind == KindWalkIn {
		cutoff = cutoff.Add(time.Duration(provider.SlotMinutes) * time.Minute)
	}
	if cutoff.Before(s.now()) {
		return invalid("in_past", "cannot book %s %s, it is in the past", d, c)
	}

	inHours, aligned := provider.Aligned(d, c)
	if !inHours {
		return invalid("out_of_hours", "%s %s is outside working hours", d, c)
	}
	if !aligned {
		return invalid("not_aligned", "%s is not a %d-minute slot start", c, provider.SlotMinutes)
	}

	holidays, err := r.ListHolidays(ctx)
	if err != nil {
		return err
	}
	if h, off := holidayOn(holidays, d, provider.ID); off {
		return invalid("holiday", "%s is closed (%s)", d, h.Name)
	}
	return nil
}

func (s *Service) slotOpen(d Date, c Clock, taken map[Date]map[Clock]bool, now time.Time) bool {
	if taken[d][c] {
		return false
	}
	return At(d, c, s.loc()).After(now)
}

func takenSlots(appts []Appointment) map[Date]map[Clock]bool {
	taken := make(map[Date]map[Clock]bool)
	for _, a := range appts {
		if a.Status == StatusCancelled {
			continue
		}
		if taken[a.Date] == nil {
			taken[a.Date] = make(map[Clock]bool)
		}
		taken[a.Date][a.Time] = true
	}
	return taken
}

func holidayOn(holidays []Holiday, d Date, providerID uuid.UUID) (Holiday, bool) {
	for _, h := range holidays {
		if h.Matches(d, providerID) {
			return h, true
		}
	}
	return Holiday{}, false
}
