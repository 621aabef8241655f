package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

type Tab string

const (
	TabToday    Tab = "today"
	TabTomorrow Tab = "tomorrow"
	TabFuture   Tab = "future"
	TabPast     Tab = "past"
	TabAll      Tab = "all"
)

func ParseTab(s string) (Tab, error) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case TabToday, TabTomorrow, TabFuture, TabPast, TabAll:
		return t, nil
	case "":
		return TabAll, nil
	default:
		return "", invalid("invalid_tab", "tab must be one of today, tomorrow, future, past, all")
	}
}

type ListFilter struct {
	Tab           Tab
	Status        *Status
	PaymentStatus *PaymentStatus
	ProviderID    *uuid.UUID
	PatientID     *uuid.UUID
	Limit         int
	Offset        int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListAppointments serves the dashboards. Patients only see their own rows
// and doctors only their own schedule, whatever the filter says.
func (s *Service) ListAppointments(ctx context.Context, id auth.Identity, f ListFilter) ([]Appointment, error) {
	var out []Appointment
	err := s.run(ctx, "list_appointments", func(ctx context.Context) error {
		q := AppointmentQuery{
			ProviderID:    f.ProviderID,
			PatientID:     f.PatientID,
			PaymentStatus: f.PaymentStatus,
			Limit:         f.Limit,
			Offset:        f.Offset,
		}
		if f.Status != nil {
			q.Statuses = []Status{*f.Status}
		}

		switch {
		case id.IsStaff():
		case id.Role == auth.RolePatient && id.PatientID != nil:
			q.PatientID = id.PatientID
		case id.Role == auth.RoleDoctor && id.ProviderID != nil:
			q.ProviderID = id.ProviderID
		default:
			return forbidden(ReasonWrongRole, "role cannot list appointments")
		}

		if q.Limit <= 0 {
			q.Limit = defaultListLimit
		}
		if q.Limit > maxListLimit {
			q.Limit = maxListLimit
		}
		if q.Offset < 0 {
			q.Offset = 0
		}

		today := s.today()
		switch f.Tab {
		case TabToday:
			q.From, q.To = &today, &today
		case TabTomorrow:
			tomorrow := today.AddDays(1)
			q.From, q.To = &tomorrow, &tomorrow
		case TabFuture:
			after := today.AddDays(2)
			q.From = &after
		case TabPast:
			yesterday := today.AddDays(-1)
			q.To = &yesterday
			q.Descending = true
		}

		appts, err := s.store.ListAppointments(ctx, q)
		if err != nil {
			return err
		}
		out = appts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAppointment returns the appointment with its patient and provider.
func (s *Service) GetAppointment(ctx context.Context, id auth.Identity, appointmentID uuid.UUID) (*AppointmentDetail, error) {
	var out *AppointmentDetail
	err := s.run(ctx, "get_appointment", func(ctx context.Context) error {
		appt, err := s.store.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := authorizeAppointment(id, appt); err != nil {
			return err
		}
		patient, err := s.store.GetPatient(ctx, appt.PatientID)
		if err != nil {
			return err
		}
		provider, err := s.store.GetProvider(ctx, appt.ProviderID)
		if err != nil {
			return err
		}
		out = &AppointmentDetail{Appointment: *appt, Patient: patient, Provider: provider}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListProviders(ctx context.Context) ([]Provider, error) {
	var out []Provider
	err := s.run(ctx, "list_providers", func(ctx context.Context) error {
		providers, err := s.store.ListProviders(ctx)
		if err != nil {
			return err
		}
		out = providers
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPatient is open to staff and to the patient themself.
func (s *Service) GetPatient(ctx context.Context, id auth.Identity, patientID uuid.UUID) (*Patient, error) {
	var out *Patient
	err := s.run(ctx, "get_patient", func(ctx context.Context) error {
		if !id.IsStaff() && !id.OwnsPatient(patientID) {
			return forbidden(ReasonNotOwner, "patient record belongs to someone else")
		}
		p, err := s.store.GetPatient(ctx, patientID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
