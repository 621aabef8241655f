package appointment_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
)

func TestListAppointments_Tabs(t *testing.T) {
	f := newFixture(t)
	today := appointment.DateOf(sunday)

	past1 := f.seed(f.patient.ID, today.AddDays(-3), 9, 0, appointment.StatusDone)
	past2 := f.seed(f.patient.ID, today.AddDays(-1), 9, 0, appointment.StatusDone)
	todays := f.seed(f.patient.ID, today, 9, 0, appointment.StatusScheduled)
	tomorrows := f.seed(f.patient.ID, monday, 9, 0, appointment.StatusScheduled)
	future := f.seed(f.patient.ID, tuesday, 9, 0, appointment.StatusScheduled)

	tests := []struct {
		tab  appointment.Tab
		want []uuid.UUID
	}{
		{appointment.TabToday, []uuid.UUID{todays.ID}},
		{appointment.TabTomorrow, []uuid.UUID{tomorrows.ID}},
		{appointment.TabFuture, []uuid.UUID{future.ID}},
		{appointment.TabPast, []uuid.UUID{past2.ID, past1.ID}},
		{appointment.TabAll, []uuid.UUID{past1.ID, past2.ID, todays.ID, tomorrows.ID, future.ID}},
	}
	for _, tt := range tests {
		t.Run(string(tt.tab), func(t *testing.T) {
			got, err := f.svc.ListAppointments(t.Context(), f.secretary, appointment.ListFilter{Tab: tt.tab})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d rows, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Fatalf("row %d: expected %s, got %s", i, tt.want[i], got[i].ID)
				}
			}
		})
	}
}

func TestListAppointments_Scoping(t *testing.T) {
	f := newFixture(t)
	other := f.addPatient("Other", "05550000009")
	mine := f.seed(f.patient.ID, monday, 9, 0, appointment.StatusScheduled)
	f.seed(other.ID, monday, 9, 30, appointment.StatusScheduled)

	// A patient asking for someone else still gets only their own rows.
	got, err := f.svc.ListAppointments(t.Context(), f.self, appointment.ListFilter{PatientID: &other.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != mine.ID {
		t.Fatalf("patient saw rows that are not theirs: %v", got)
	}

	got, err = f.svc.ListAppointments(t.Context(), f.doctor, appointment.ListFilter{})
	if err != nil || len(got) != 2 {
		t.Fatalf("doctor should see the whole schedule: %d %v", len(got), err)
	}

	_, err = f.svc.ListAppointments(t.Context(), auth.Identity{Role: auth.RolePatient}, appointment.ListFilter{})
	wantForbidden(t, err, appointment.ReasonWrongRole)

	status := appointment.StatusScheduled
	got, err = f.svc.ListAppointments(t.Context(), f.secretary, appointment.ListFilter{Status: &status, Limit: 1})
	if err != nil || len(got) != 1 {
		t.Fatalf("limit not applied: %d %v", len(got), err)
	}
}

func TestGetAppointment(t *testing.T) {
	f := newFixture(t)
	a := f.seed(f.patient.ID, monday, 9, 0, appointment.StatusScheduled)

	d, err := f.svc.GetAppointment(t.Context(), f.self, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Patient.ID != f.patient.ID || d.Provider.ID != f.provider.ID {
		t.Fatalf("detail must carry patient and provider")
	}

	stranger := f.addPatient("Stranger", "05551010101")
	_, err = f.svc.GetAppointment(t.Context(), auth.Identity{Role: auth.RolePatient, PatientID: &stranger.ID}, a.ID)
	wantForbidden(t, err, appointment.ReasonNotOwner)
}

func TestParseTab(t *testing.T) {
	if tab, err := appointment.ParseTab(""); err != nil || tab != appointment.TabAll {
		t.Fatalf("empty tab should mean all, got %q %v", tab, err)
	}
	if tab, err := appointment.ParseTab(" Past "); err != nil || tab != appointment.TabPast {
		t.Fatalf("expected past, got %q %v", tab, err)
	}
	_, err := appointment.ParseTab("yesterday")
	wantValidation(t, err, "invalid_tab")
}
