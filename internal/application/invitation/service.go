package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/coach-onboarding/internal/application/audit"
	"github.com/coach-onboarding/internal/domain"
	jwtinfra "github.com/coach-onboarding/internal/infrastructure/jwt"
	"github.com/coach-onboarding/internal/infrastructure/smtp"
	"github.com/coach-onboarding/internal/pkg/id"
	"github.com/coach-onboarding/internal/pkg/validate"
)

// Validation statuses reported alongside Valid=false.
const (
	StatusValid    = "valid"
	StatusExpired  = "expired"
	StatusRevoked  = "revoked"
	StatusInvalid  = "invalid"
	StatusNotFound = "not_found"
)

type Store interface {
	Put(ctx context.Context, inv *domain.Invitation) error
	Get(ctx context.Context, invitationID string) (*domain.Invitation, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Invitation, error)
	SetStatus(ctx context.Context, invitationID, status string) error
}

type Tokens interface {
	Sign(inv *domain.Invitation) (string, error)
	Verify(token string) (*jwtinfra.InvitationClaims, error)
}

// Created is returned to the admin caller; Token is the only copy.
type Created struct {
	Invitation *domain.Invitation `json:"invitation"`
	Token      string             `json:"token"`
	Link       string             `json:"link"`
}

type Service interface {
	Create(ctx context.Context, req domain.CreateInvitationRequest) (*Created, error)
	Validate(ctx context.Context, token string) domain.InvitationValidation
	Resolve(ctx context.Context, token string) (*domain.Invitation, error)
	Accept(ctx context.Context, invitationID string) error
	Revoke(ctx context.Context, invitationID string) error
}

type service struct {
	store   Store
	tokens  Tokens
	mailer  smtp.Mailer
	audit   audit.Logger
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewService wires the invitation service. mailer may be nil, in which case
// no email is sent and the link is only returned to the caller.
func NewService(store Store, tokens Tokens, mailer smtp.Mailer, auditLog audit.Logger, ttl time.Duration, baseURL string) Service {
	if auditLog == nil {
		auditLog = audit.Discard()
	}
	return &service{
		store:   store,
		tokens:  tokens,
		mailer:  mailer,
		audit:   auditLog,
		ttl:     ttl,
		baseURL: baseURL,
		now:     time.Now,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateInvitationRequest) (*Created, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	previous, err := s.store.ListByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("list invitations for email: %w", err)
	}

	now := s.now().UTC()
	inv := &domain.Invitation{
		InvitationID: id.New(),
		Email:        req.Email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        req.Phone,
		City:         req.City,
		State:        req.State,
		Status:       domain.InvitationPending,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Put(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	s.supersede(ctx, previous)
	token, err := s.tokens.Sign(inv)
	if err != nil {
		return nil, fmt.Errorf("sign invitation: %w", err)
	}
	link := s.link(token)

	if s.mailer != nil {
		body := fmt.Sprintf("Hi %s,\r\n\r\nYou have been invited to set up your coaching profile.\r\nStart here: %s\r\n\r\nThis link expires on %s.\r\n",
			inv.FirstName, link, inv.ExpiresAt.Format("January 2, 2006"))
		if err := s.mailer.SendEmail(inv.Email, "Your onboarding invitation", body); err != nil {
			slog.WarnContext(ctx, "failed to send invitation email", "invitation_id", inv.InvitationID, "email", inv.Email, "err", err)
		}
	}

	s.audit.Record(ctx, audit.Event{Type: audit.InvitationCreated, InvitationID: inv.InvitationID, Email: inv.Email})
	return &Created{Invitation: inv, Token: token, Link: link}, nil
}

// Validate never returns an error; every failure is reported in the result.
// Accepted invitations stay valid so a coach can resume onboarding.
func (s *service) Validate(ctx context.Context, token string) domain.InvitationValidation {
	inv, err := s.Resolve(ctx, token)
	switch {
	case err == nil:
		return domain.InvitationValidation{Valid: true, Invitation: inv, Status: StatusValid}
	case errors.Is(err, domain.ErrExpired):
		return domain.InvitationValidation{Error: "Invitation has expired", Status: StatusExpired}
	case errors.Is(err, domain.ErrForbidden):
		return domain.InvitationValidation{Error: "Invitation has been revoked", Status: StatusRevoked}
	case errors.Is(err, domain.ErrNotFound):
		return domain.InvitationValidation{Error: "Invitation not found", Status: StatusNotFound}
	default:
		if !errors.Is(err, domain.ErrInvalidInvitation) {
			slog.ErrorContext(ctx, "failed to validate invitation", "err", err)
		}
		return domain.InvitationValidation{Error: "Invalid invitation token", Status: StatusInvalid}
	}
}

// Resolve verifies token and loads the invitation it names.
func (s *service) Resolve(ctx context.Context, token string) (*domain.Invitation, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("token is required: %w", domain.ErrInvalidInvitation)
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	inv, err := s.store.Get(ctx, claims.InvitationID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(inv.Email, claims.Email) {
		return nil, fmt.Errorf("invitation email does not match token: %w", domain.ErrInvalidInvitation)
	}
	if inv.Status == domain.InvitationRevoked {
		return nil, fmt.Errorf("invitation %s revoked: %w", inv.InvitationID, domain.ErrForbidden)
	}
	if !inv.Usable(s.now()) {
		return nil, fmt.Errorf("invitation %s: %w", inv.InvitationID, domain.ErrExpired)
	}
	return inv, nil
}

func (s *service) Accept(ctx context.Context, invitationID string) error {
	if err := s.store.SetStatus(ctx, invitationID, domain.InvitationAccepted); err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	s.audit.Record(ctx, audit.Event{Type: audit.InvitationAccepted, InvitationID: invitationID})
	return nil
}

func (s *service) Revoke(ctx context.Context, invitationID string) error {
	if strings.TrimSpace(invitationID) == "" {
		return fmt.Errorf("invitation id is required: %w", domain.ErrBadRequest)
	}
	if err := s.store.SetStatus(ctx, invitationID, domain.InvitationRevoked); err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	s.audit.Record(ctx, audit.Event{Type: audit.InvitationRevoked, InvitationID: invitationID})
	return nil
}

// supersede revokes pending invitations replaced by a newer one for the same
// email. Failures are logged; the new invitation stands either way.
func (s *service) supersede(ctx context.Context, previous []domain.Invitation) {
	for _, prev := range previous {
		if prev.Status != domain.InvitationPending {
			continue
		}
		if err := s.store.SetStatus(ctx, prev.InvitationID, domain.InvitationRevoked); err != nil {
			slog.WarnContext(ctx, "failed to revoke superseded invitation", "invitation_id", prev.InvitationID, "err", err)
			continue
		}
		s.audit.Record(ctx, audit.Event{
			Type:         audit.InvitationRevoked,
			InvitationID: prev.InvitationID,
			Email:        prev.Email,
			Detail:       map[string]interface{}{"reason": "superseded"},
		})
	}
}

func (s *service) link(token string) string {
	sep := "?"
	if strings.Contains(s.baseURL, "?") {
		sep = "&"
	}
	return s.baseURL + sep + "invite=" + url.QueryEscape(token)
}
