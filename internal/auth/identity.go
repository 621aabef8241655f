package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient   Role = "patient"
	RoleSecretary Role = "secretary"
	RoleDoctor    Role = "doctor"
	RoleAdmin     Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePatient, RoleSecretary, RoleDoctor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is the authenticated caller every core operation receives.
// PatientID is set for patients, ProviderID for doctors.
type Identity struct {
	UserID     uuid.UUID
	Role       Role
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
}

// IsStaff reports whether the caller has front-desk rights. Admins hold every
// secretary right.
func (i Identity) IsStaff() bool {
	return i.Role == RoleSecretary || i.Role == RoleAdmin
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// OwnsPatient is true only for a patient acting on their own record.
func (i Identity) OwnsPatient(patientID uuid.UUID) bool {
	return i.Role == RolePatient && i.PatientID != nil && *i.PatientID == patientID
}

// ActsForProvider is true only for a doctor acting on their own schedule.
func (i Identity) ActsForProvider(providerID uuid.UUID) bool {
	return i.Role == RoleDoctor && i.ProviderID != nil && *i.ProviderID == providerID
}

// HasAny reports whether the caller holds one of roles. Admin satisfies a
// secretary requirement.
func (i Identity) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
		if r == RoleSecretary && i.Role == RoleAdmin {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
