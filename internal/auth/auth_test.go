package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/config"
)

func testManager() *Manager {
	return NewManager(config.AuthConfig{JWTSecret: "test-secret", Issuer: "clinic-test"})
}

func TestManager_IssueVerifyRoundTrip(t *testing.T) {
	m := testManager()
	pid := uuid.New()
	in := Identity{UserID: uuid.New(), Role: RolePatient, PatientID: &pid}

	tok, err := m.Issue(in, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	out, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out.UserID != in.UserID || out.Role != RolePatient || out.PatientID == nil || *out.PatientID != pid {
		t.Errorf("identity mismatch: %+v", out)
	}
}

func TestManager_VerifyExpired(t *testing.T) {
	m := testManager()
	issuedAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issuedAt }

	tok, err := m.Issue(Identity{UserID: uuid.New(), Role: RoleSecretary}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	m.now = func() time.Time { return issuedAt.Add(time.Hour) }
	if _, err := m.Verify(tok); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestManager_VerifyWrongSecret(t *testing.T) {
	tok, err := testManager().Issue(Identity{UserID: uuid.New(), Role: RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other := NewManager(config.AuthConfig{JWTSecret: "other", Issuer: "clinic-test"})
	if _, err := other.Verify(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestManager_DoctorWithoutProviderRejected(t *testing.T) {
	m := testManager()
	tok, err := m.Issue(Identity{UserID: uuid.New(), Role: RoleDoctor}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestIdentity_HasAny(t *testing.T) {
	admin := Identity{Role: RoleAdmin}
	if !admin.HasAny(RoleSecretary) {
		t.Error("admin should satisfy secretary")
	}
	if !admin.IsStaff() {
		t.Error("admin should be staff")
	}
	doctor := Identity{Role: RoleDoctor}
	if doctor.HasAny(RoleSecretary, RolePatient) {
		t.Error("doctor should not satisfy secretary or patient")
	}
}

func TestIdentity_Ownership(t *testing.T) {
	pid := uuid.New()
	p := Identity{Role: RolePatient, PatientID: &pid}
	if !p.OwnsPatient(pid) {
		t.Error("expected patient to own own record")
	}
	if p.OwnsPatient(uuid.New()) {
		t.Error("patient should not own another record")
	}
	s := Identity{Role: RoleSecretary, PatientID: &pid}
	if s.OwnsPatient(pid) {
		t.Error("only patients own patient records")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{Role: RoleDoctor})
	id, ok := FromContext(ctx)
	if !ok || id.Role != RoleDoctor {
		t.Errorf("unexpected identity from context: %+v %v", id, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no identity on empty context")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" Secretary "); err != nil || r != RoleSecretary {
		t.Errorf("unexpected %v %v", r, err)
	}
	if _, err := ParseRole("nurse"); err == nil {
		t.Error("expected error for unknown role")
	}
}
