package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/coach-onboarding/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const invitationAudience = "coach-onboarding"

// InvitationClaims holds the invitation token payload.
type InvitationClaims struct {
	InvitationID string `json:"invitation_id"`
	Email        string `json:"email"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 invitation tokens.
type Provider struct {
	key []byte
	now func() time.Time
}

func NewProvider(key string) (*Provider, error) {
	if key == "" {
		return nil, errors.New("invitation signing key is required")
	}
	return &Provider{key: []byte(key), now: time.Now}, nil
}

// Sign issues a token for inv that expires with the invitation.
func (p *Provider) Sign(inv *domain.Invitation) (string, error) {
	claims := InvitationClaims{
		InvitationID: inv.InvitationID,
		Email:        inv.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   inv.InvitationID,
			Audience:  jwt.ClaimStrings{invitationAudience},
			ExpiresAt: jwt.NewNumericDate(inv.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(p.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.key)
}

// Verify checks signature, audience and expiry. Failures wrap
// domain.ErrInvalidInvitation; an expired token additionally wraps
// domain.ErrExpired.
func (p *Provider) Verify(tokenStr string) (*InvitationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &InvitationClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.key, nil
	}, jwt.WithAudience(invitationAudience), jwt.WithTimeFunc(p.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("invitation token expired: %w: %w", domain.ErrInvalidInvitation, domain.ErrExpired)
		}
		return nil, fmt.Errorf("invitation token: %v: %w", err, domain.ErrInvalidInvitation)
	}
	claims, ok := token.Claims.(*InvitationClaims)
	if !ok || !token.Valid || claims.InvitationID == "" {
		return nil, fmt.Errorf("invalid invitation claims: %w", domain.ErrInvalidInvitation)
	}
	return claims, nil
}
