package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/config"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

type clinicClaims struct {
	jwt.RegisteredClaims
	Role       string     `json:"role"`
	PatientID  *uuid.UUID `json:"patient_id,omitempty"`
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
}

// Manager signs and verifies HS256 access tokens. Issuing is used by the seed
// and simulate tools; the API server only verifies.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, now: time.Now}
}

func (m *Manager) Issue(id Identity, ttl time.Duration) (string, error) {
	now := m.now()
	claims := clinicClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		},
		Role:       string(id.Role),
		PatientID:  id.PatientID,
		ProviderID: id.ProviderID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *Manager) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&clinicClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*clinicClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, ErrTokenInvalid
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, ErrTokenInvalid
	}

	id := Identity{UserID: userID, Role: role, PatientID: claims.PatientID, ProviderID: claims.ProviderID}
	if role == RolePatient && id.PatientID == nil {
		return Identity{}, ErrTokenInvalid
	}
	if role == RoleDoctor && id.ProviderID == nil {
		return Identity{}, ErrTokenInvalid
	}
	return id, nil
}
