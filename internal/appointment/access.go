package appointment

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type Action string

const (
	ActionLogin Action = "login"
	ActionBook  Action = "book"
)

func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionLogin:
		return ActionLogin, nil
	case ActionBook:
		return ActionBook, nil
	default:
		return "", invalid("invalid_action", "action must be login or book")
	}
}

type AccessRequest struct {
	PatientID *uuid.UUID
	Phone     string
	Action    Action
}

// NormalizePhone keeps only the digits, so "+90 (532) 111-22-33" and
// "905321112233" compare equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckAccess returns nil when the action is allowed and a *ForbiddenError
// naming the block otherwise. An unknown patient or phone is allowed.
func (s *Service) CheckAccess(ctx context.Context, req AccessRequest) error {
	return s.run(ctx, "check_access", func(ctx context.Context) error {
		var p *Patient
		if req.PatientID != nil {
			found, err := s.store.GetPatient(ctx, *req.PatientID)
			switch {
			case errors.Is(err, ErrPatientNotFound):
			case err != nil:
				return err
			default:
				p = found
			}
		}
		return checkAccess(ctx, s.store, p, req.Phone, req.Action)
	}, attribute.String("action", string(req.Action)))
}

func checkAccess(ctx context.Context, r Reader, p *Patient, phone string, action Action) error {
	if p != nil {
		switch action {
		case ActionLogin:
			if p.LoginBlocked {
				return forbidden(ReasonLoginBlocked, blockMessage(p, "login is blocked for this account"))
			}
		case ActionBook:
			if p.BookingBlocked {
				return forbidden(ReasonBookingBlocked, blockMessage(p, "booking is blocked for this account"))
			}
		}
		if phone == "" {
			phone = p.NormalizedPhone
		}
	}

	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil
	}
	blocked, err := r.IsPhoneBlocked(ctx, normalized)
	if err != nil {
		return err
	}
	if blocked {
		return forbidden(ReasonPhoneBlocked, "this phone number is blocked")
	}
	return nil
}

func blockMessage(p *Patient, fallback string) string {
	if p.BlockReason != nil && *p.BlockReason != "" {
		return *p.BlockReason
	}
	return fallback
}
