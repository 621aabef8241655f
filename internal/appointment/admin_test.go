package appointment_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
)

func TestAddHoliday_CancelsConflicts(t *testing.T) {
	f := newFixture(t)
	scheduled := f.seed(f.patient.ID, tuesday, 9, 0, appointment.StatusScheduled)
	checkedIn := f.seed(f.patient.ID, tuesday, 9, 30, appointment.StatusCheckedIn)
	done := f.seed(f.patient.ID, tuesday, 10, 0, appointment.StatusDone)
	otherDay := f.seed(f.patient.ID, monday, 9, 0, appointment.StatusScheduled)

	h, n, err := f.svc.AddHoliday(t.Context(), f.admin, appointment.HolidayRequest{Date: tuesday, Name: "Storm"})
	if err != nil {
		t.Fatalf("add holiday: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cancellations, got %d", n)
	}
	if h.Name != "Storm" {
		t.Errorf("unexpected holiday %+v", h)
	}

	for _, id := range []uuid.UUID{scheduled.ID, checkedIn.ID} {
		got := f.get(t, id)
		if got.Status != appointment.StatusCancelled || got.CancelReason == nil || *got.CancelReason != "Holiday: Storm" {
			t.Errorf("appointment %s not cancelled for holiday: %s %v", id, got.Status, got.CancelReason)
		}
	}
	if got := f.get(t, done.ID); got.Status != appointment.StatusDone {
		t.Errorf("terminal appointment touched: %s", got.Status)
	}
	if got := f.get(t, otherDay.ID); got.Status != appointment.StatusScheduled {
		t.Errorf("unrelated day touched: %s", got.Status)
	}
	if got := len(f.eventsOfType(appointment.EventHolidayCancelled)); got != 2 {
		t.Errorf("expected 2 holiday events, got %d", got)
	}
}

func TestAddHoliday_Authorization(t *testing.T) {
	f := newFixture(t)
	pid := f.provider.ID

	_, _, err := f.svc.AddHoliday(t.Context(), f.secretary, appointment.HolidayRequest{Date: tuesday, Name: "Clinic wide"})
	wantForbidden(t, err, appointment.ReasonWrongRole)

	if _, _, err := f.svc.AddHoliday(t.Context(), f.doctor, appointment.HolidayRequest{Date: tuesday, Name: "Leave", ProviderID: &pid}); err != nil {
		t.Fatalf("doctor off-day: %v", err)
	}

	otherProvider := uuid.New()
	_, _, err = f.svc.AddHoliday(t.Context(), f.doctor, appointment.HolidayRequest{Date: tuesday, Name: "Leave", ProviderID: &otherProvider})
	wantForbidden(t, err, appointment.ReasonWrongRole)

	_, _, err = f.svc.AddHoliday(t.Context(), f.admin, appointment.HolidayRequest{Date: tuesday})
	wantValidation(t, err, "invalid_name")
}

func TestDeleteHoliday(t *testing.T) {
	f := newFixture(t)
	h, _, err := f.svc.AddHoliday(t.Context(), f.admin, appointment.HolidayRequest{Date: tuesday, Name: "Closed"})
	if err != nil {
		t.Fatalf("add holiday: %v", err)
	}
	if err := f.svc.DeleteHoliday(t.Context(), f.admin, h.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	holidays, err := f.svc.ListHolidays(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(holidays) != 0 {
		t.Fatalf("expected no holidays, got %d", len(holidays))
	}

	err = f.svc.DeleteHoliday(t.Context(), f.admin, h.ID)
	var nfe *appointment.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepHolidayConflicts(t *testing.T) {
	f := newFixture(t)
	a := f.seed(f.patient.ID, tuesday, 9, 0, appointment.StatusScheduled)
	pid := f.provider.ID
	f.store.AddHoliday(appointment.Holiday{ID: uuid.New(), Date: tuesday, Name: "Training", ProviderID: &pid})

	n, err := f.svc.SweepHolidayConflicts(t.Context())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cancellation, got %d", n)
	}
	if got := f.get(t, a.ID); got.Status != appointment.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	n, err = f.svc.SweepHolidayConflicts(t.Context())
	if err != nil || n != 0 {
		t.Fatalf("second sweep should be a no-op, got %d %v", n, err)
	}
}

func TestBlockPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BlockPatient(t.Context(), f.secretary, f.patient.ID, appointment.BlockRequest{Login: true})
	wantForbidden(t, err, appointment.ReasonWrongRole)

	_, err = f.svc.BlockPatient(t.Context(), f.admin, f.patient.ID, appointment.BlockRequest{})
	wantValidation(t, err, "invalid_block")

	p, err := f.svc.BlockPatient(t.Context(), f.admin, f.patient.ID, appointment.BlockRequest{Login: true, Reason: "fraud"})
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if !p.LoginBlocked || p.BookingBlocked {
		t.Fatalf("only login should be blocked: %+v", p)
	}

	err = f.svc.CheckAccess(t.Context(), appointment.AccessRequest{PatientID: &f.patient.ID, Action: appointment.ActionLogin})
	wantForbidden(t, err, appointment.ReasonLoginBlocked)
	var fe *appointment.ForbiddenError
	if errors.As(err, &fe) && fe.Msg != "fraud" {
		t.Errorf("block reason should be surfaced, got %q", fe.Msg)
	}

	if err := f.svc.CheckAccess(t.Context(), appointment.AccessRequest{PatientID: &f.patient.ID, Action: appointment.ActionBook}); err != nil {
		t.Fatalf("booking should still be allowed: %v", err)
	}
}

func TestCheckAccess_Phones(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.AddBlockedPhone(t.Context(), f.admin, "+90 (532) 111-22-33", "spam"); err != nil {
		t.Fatalf("block phone: %v", err)
	}

	err := f.svc.CheckAccess(t.Context(), appointment.AccessRequest{Phone: "905321112233", Action: appointment.ActionLogin})
	wantForbidden(t, err, appointment.ReasonPhoneBlocked)

	// The patient's own number is checked when no phone is given.
	err = f.svc.CheckAccess(t.Context(), appointment.AccessRequest{PatientID: &f.patient.ID, Action: appointment.ActionBook})
	wantForbidden(t, err, appointment.ReasonPhoneBlocked)

	unknown := uuid.New()
	if err := f.svc.CheckAccess(t.Context(), appointment.AccessRequest{PatientID: &unknown, Action: appointment.ActionLogin}); err != nil {
		t.Fatalf("unknown patient should be allowed: %v", err)
	}

	phones, err := f.svc.ListBlockedPhones(t.Context(), f.secretary)
	if err != nil || len(phones) != 1 || phones[0].Phone != "905321112233" {
		t.Fatalf("unexpected blocked phones %v %v", phones, err)
	}

	if err := f.svc.RemoveBlockedPhone(t.Context(), f.admin, "905321112233"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.svc.CheckAccess(t.Context(), appointment.AccessRequest{PatientID: &f.patient.ID, Action: appointment.ActionBook}); err != nil {
		t.Fatalf("unblocked phone should pass: %v", err)
	}

	_, err = f.svc.AddBlockedPhone(t.Context(), auth.Identity{Role: auth.RoleSecretary}, "123", "")
	wantForbidden(t, err, appointment.ReasonWrongRole)
	_, err = f.svc.AddBlockedPhone(t.Context(), f.admin, "---", "")
	wantValidation(t, err, "invalid_phone")
}
