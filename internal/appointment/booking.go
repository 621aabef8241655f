package appointment

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

const (
	maxNotesLen  = 500
	maxReasonLen = 255
)

type BookRequest struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	Date       Date
	Time       Clock
	Price      *decimal.Decimal
	Notes      *string
}

type NewPatient struct {
	FullName string
	Phone    string
	Email    *string
}

// WalkInRequest names either an existing PatientID or an inline NewPatient.
// A zero Date means today.
type WalkInRequest struct {
	ProviderID uuid.UUID
	PatientID  *uuid.UUID
	NewPatient *NewPatient
	Date       Date
	Time       Clock
	Price      *decimal.Decimal
	Notes      *string
}

// Book commits a new Scheduled, Unpaid appointment. Patients book only for
// themselves at the provider's default price; staff may set a price.
func (s *Service) Book(ctx context.Context, id auth.Identity, req BookRequest) (*Appointment, error) {
	var created *Appointment
	err := s.run(ctx, "book", func(ctx context.Context) error {
		switch {
		case id.Role == auth.RolePatient:
			if !id.OwnsPatient(req.PatientID) {
				return forbidden(ReasonNotOwner, "patients can only book for themselves")
			}
			req.Price = nil
		case id.IsStaff():
		default:
			return forbidden(ReasonWrongRole, "role cannot book appointments")
		}
		notes, err := cleanNotes(req.Notes)
		if err != nil {
			return err
		}
		if err := checkPrice(req.Price); err != nil {
			return err
		}

		provider, err := s.store.GetProvider(ctx, req.ProviderID)
		if err != nil {
			return err
		}

		key := SlotKey(req.ProviderID, req.Date, req.Time)
		return s.withSlotLock(ctx, key, func(ctx context.Context) error {
			return s.store.InTx(ctx, func(tx Tx) error {
				patient, err := tx.LockPatient(ctx, req.PatientID)
				if err != nil {
					return err
				}
				if err := checkAccess(ctx, tx, patient, "", ActionBook); err != nil {
					return err
				}
				if err := s.validateSlot(ctx, tx, provider, req.Date, req.Time, KindBooking); err != nil {
					return err
				}

				appt := s.newAppointment(id, provider, patient.ID, req.Date, req.Time, req.Price, notes, KindBooking)
				if err := tx.InsertAppointment(ctx, appt); err != nil {
					return err
				}
				if err := s.logEvent(ctx, tx, &appt.ID, EventAppointmentBooked, map[string]any{
					"provider_id": provider.ID.String(),
					"patient_id":  patient.ID.String(),
					"date":        appt.Date.String(),
					"time":        appt.Time.String(),
					"price":       appt.Price.StringFixed(2),
					"by":          id.UserID.String(),
				}); err != nil {
					return err
				}
				created = appt
				return nil
			})
		})
	}, attribute.String("provider_id", req.ProviderID.String()), attribute.String("date", req.Date.String()))

	s.metrics.ObserveBooking(string(KindBooking), outcomeOf(err))
	if err != nil {
		return nil, err
	}
	s.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("provider_id", created.ProviderID.String()),
		zap.String("slot", created.Date.String()+" "+created.Time.String()),
	)
	return created, nil
}

// CreateWalkIn registers a walk-in for staff. When NewPatient is given the
// patient row and the appointment commit together or not at all.
func (s *Service) CreateWalkIn(ctx context.Context, id auth.Identity, req WalkInRequest) (*AppointmentDetail, error) {
	var created *AppointmentDetail
	err := s.run(ctx, "create_walk_in", func(ctx context.Context) error {
		if !id.IsStaff() {
			return forbidden(ReasonWrongRole, "only staff can register walk-ins")
		}
		if (req.PatientID == nil) == (req.NewPatient == nil) {
			return invalid("invalid_patient", "exactly one of patient_id or new_patient is required")
		}
		if req.NewPatient != nil && strings.TrimSpace(req.NewPatient.FullName) == "" {
			return invalid("invalid_patient", "new patient full name is required")
		}
		notes, err := cleanNotes(req.Notes)
		if err != nil {
			return err
		}
		if err := checkPrice(req.Price); err != nil {
			return err
		}
		if req.Date.IsZero() {
			req.Date = s.today()
		}

		provider, err := s.store.GetProvider(ctx, req.ProviderID)
		if err != nil {
			return err
		}

		key := SlotKey(req.ProviderID, req.Date, req.Time)
		return s.withSlotLock(ctx, key, func(ctx context.Context) error {
			return s.store.InTx(ctx, func(tx Tx) error {
				var patient *Patient
				if req.PatientID != nil {
					patient, err = tx.LockPatient(ctx, *req.PatientID)
					if err != nil {
						return err
					}
					if err := checkAccess(ctx, tx, patient, "", ActionBook); err != nil {
						return err
					}
				} else {
					if err := checkAccess(ctx, tx, nil, req.NewPatient.Phone, ActionBook); err != nil {
						return err
					}
					now := s.now().UTC()
					patient = &Patient{
						ID:              uuid.New(),
						FullName:        strings.TrimSpace(req.NewPatient.FullName),
						Phone:           strings.TrimSpace(req.NewPatient.Phone),
						NormalizedPhone: NormalizePhone(req.NewPatient.Phone),
						Email:           req.NewPatient.Email,
						Balance:         decimal.Zero,
						CreatedAt:       now,
						UpdatedAt:       now,
					}
					if err := tx.InsertPatient(ctx, patient); err != nil {
						return err
					}
				}

				if err := s.validateSlot(ctx, tx, provider, req.Date, req.Time, KindWalkIn); err != nil {
					return err
				}

				appt := s.newAppointment(id, provider, patient.ID, req.Date, req.Time, req.Price, notes, KindWalkIn)
				if err := tx.InsertAppointment(ctx, appt); err != nil {
					return err
				}
				if err := s.logEvent(ctx, tx, &appt.ID, EventWalkInCreated, map[string]any{
					"provider_id": provider.ID.String(),
					"patient_id":  patient.ID.String(),
					"new_patient": req.NewPatient != nil,
					"date":        appt.Date.String(),
					"time":        appt.Time.String(),
					"by":          id.UserID.String(),
				}); err != nil {
					return err
				}

				created = &AppointmentDetail{Appointment: *appt, Patient: patient, Provider: provider}
				return nil
			})
		})
	}, attribute.String("provider_id", req.ProviderID.String()))

	s.metrics.ObserveBooking(string(KindWalkIn), outcomeOf(err))
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) newAppointment(id auth.Identity, provider *Provider, patientID uuid.UUID, d Date, c Clock, price *decimal.Decimal, notes *string, kind Kind) *Appointment {
	p := provider.DefaultPrice
	if price != nil {
		p = *price
	}
	now := s.now().UTC()
	return &Appointment{
		ID:            uuid.New(),
		ProviderID:    provider.ID,
		PatientID:     patientID,
		Date:          d,
		Time:          c,
		Status:        StatusScheduled,
		PaymentStatus: PaymentUnpaid,
		Price:         p.Round(2),
		Notes:         notes,
		Kind:          kind,
		CreatedBy:     ptr(id.UserID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func cleanNotes(notes *string) (*string, error) {
	if notes == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxNotesLen {
		return nil, invalid("notes_too_long", "notes must be at most %d characters", maxNotesLen)
	}
	return &trimmed, nil
}

func checkPrice(price *decimal.Decimal) error {
	if price != nil && price.IsNegative() {
		return invalid("invalid_price", "price must not be negative")
	}
	return nil
}
