package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coach-onboarding/internal/application/audit"
	"github.com/coach-onboarding/internal/domain"
	"github.com/coach-onboarding/internal/metrics"
	"github.com/coach-onboarding/internal/pkg/id"
	"github.com/coach-onboarding/internal/pkg/validate"
)

// Archive reasons.
const (
	reasonSuperseded = "superseded"
	reasonDeleted    = "deleted"
	reasonExpired    = "expired"
)

// Store is the persistence the session service requires.
type Store interface {
	Put(ctx context.Context, s *domain.OnboardingSession) error
	Get(ctx context.Context, sessionID string) (*domain.OnboardingSession, error)
	ListByEmail(ctx context.Context, email string) ([]domain.OnboardingSession, error)
	ScanAll(ctx context.Context) ([]domain.OnboardingSession, error)
	Delete(ctx context.Context, sessionID string) error
}

// Archiver keeps a copy of sessions before they are removed.
type Archiver interface {
	Archive(ctx context.Context, s *domain.OnboardingSession, reason string) error
}

// Invitations resolves invitation tokens presented at session creation.
type Invitations interface {
	Resolve(ctx context.Context, token string) (*domain.Invitation, error)
	Accept(ctx context.Context, invitationID string) error
}

type Service interface {
	Get(ctx context.Context, lookup domain.SessionLookup) (*domain.SessionData, error)
	Create(ctx context.Context, req domain.CreateSessionRequest) (*domain.SessionData, error)
	Update(ctx context.Context, req domain.UpdateSessionRequest) (*domain.SessionData, error)
	Delete(ctx context.Context, lookup domain.SessionLookup) (int, error)
	SweepExpired(ctx context.Context) (int, error)
}

// ServiceDeps wires the session service. Archiver and Invitations are optional.
type ServiceDeps struct {
	Store       Store
	Sealer      Sealer
	Archiver    Archiver
	Invitations Invitations
	Audit       audit.Logger
	DefaultTTL  time.Duration
	MaxTTL      time.Duration
	Now         func() time.Time
}

type service struct {
	store       Store
	sealer      Sealer
	archiver    Archiver
	invitations Invitations
	audit       audit.Logger
	defaultTTL  time.Duration
	maxTTL      time.Duration
	now         func() time.Time
}

func NewService(d ServiceDeps) Service {
	s := &service{
		store:       d.Store,
		sealer:      d.Sealer,
		archiver:    d.Archiver,
		invitations: d.Invitations,
		audit:       d.Audit,
		defaultTTL:  d.DefaultTTL,
		maxTTL:      d.MaxTTL,
		now:         d.Now,
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = 180 * time.Minute
	}
	if s.maxTTL <= 0 {
		s.maxTTL = 1440 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.audit == nil {
		s.audit = audit.Discard()
	}
	return s
}

func (s *service) Get(ctx context.Context, lookup domain.SessionLookup) (*domain.SessionData, error) {
	lookup = normalize(lookup)
	if lookup.Empty() {
		return nil, fmt.Errorf("email or sessionId is required: %w", domain.ErrBadRequest)
	}
	found, err := s.find(ctx, lookup)
	if err != nil {
		return nil, err
	}
	var rec *domain.OnboardingSession
	if len(found) > 0 {
		rec = mostRecent(found)
	}
	// The selected record is left to the expiry check below so an expired
	// session answers 410 instead of vanishing as 404.
	skip := func(r *domain.OnboardingSession) bool { return rec != nil && r.SessionID == rec.SessionID }
	if _, err := s.sweep(ctx, skip); err != nil {
		slog.WarnContext(ctx, "expired session sweep failed", "err", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("onboarding session: %w", domain.ErrNotFound)
	}
	payload := DecodePayload(s.sealer, rec.StepData, rec.Encrypted)
	if s.expired(payload, rec) {
		return nil, s.expire(ctx, rec)
	}
	return view(rec, payload), nil
}

func (s *service) Create(ctx context.Context, req domain.CreateSessionRequest) (*domain.SessionData, error) {
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		return nil, fmt.Errorf("email is required: %w", domain.ErrBadRequest)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}

	existing, err := s.store.ListByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("list sessions for email: %w", err)
	}
	for i := range existing {
		if err := s.remove(ctx, &existing[i], reasonSuperseded); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl(req.TTLMinutes))
	encrypt := req.EncryptSensitiveData == nil || *req.EncryptSensitiveData
	sessionID := id.NewSessionID(now)

	payload := domain.SessionPayload{
		SchemaVersion: domain.FormSchemaVersion,
		SessionID:     sessionID,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
	}
	rec := &domain.OnboardingSession{
		SessionID:      sessionID,
		Email:          req.Email,
		CurrentStep:    domain.StepPersonalInfo.Code(),
		CompletedSteps: []domain.Step{},
		ExpiresAt:      expiresAt,
		Encrypted:      encrypt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if inv := s.resolveInvitation(ctx, req); inv != nil {
		rec.InvitationBased = true
		invID := inv.InvitationID
		rec.InvitationID = &invID
		payload.Form.Merge(prefill(inv))
	}

	rec.StepData, err = EncodePayload(s.sealer, payload, encrypt)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("create onboarding session: %w", err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:         audit.SessionCreated,
		SessionID:    rec.SessionID,
		Email:        rec.Email,
		InvitationID: deref(rec.InvitationID),
		Detail:       map[string]interface{}{"encrypted": encrypt, "expires_at": expiresAt, "replaced": len(existing)},
	})
	return view(rec, payload), nil
}

func (s *service) Update(ctx context.Context, req domain.UpdateSessionRequest) (*domain.SessionData, error) {
	lookup := normalize(req.Lookup())
	if lookup.Empty() {
		return nil, fmt.Errorf("sessionId or email is required: %w", domain.ErrBadRequest)
	}
	var current domain.Step
	if req.CurrentStep != nil && *req.CurrentStep != "" {
		if current = domain.StepFromCode(string(*req.CurrentStep)); !current.Known() {
			return nil, fmt.Errorf("unknown currentStep %q: %w", *req.CurrentStep, domain.ErrBadRequest)
		}
	}
	var completed []domain.Step
	if req.CompletedSteps != nil {
		completed = make([]domain.Step, 0, len(req.CompletedSteps))
		for _, st := range req.CompletedSteps {
			step := domain.StepFromCode(string(st))
			if !step.Known() {
				return nil, fmt.Errorf("unknown completed step %q: %w", st, domain.ErrBadRequest)
			}
			completed = append(completed, step)
		}
	}

	found, err := s.find(ctx, lookup)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("onboarding session: %w", domain.ErrNotFound)
	}
	// First match, not the most recent: Create keeps one session per email,
	// so duplicates only exist after a lost race.
	rec := &found[0]
	payload := DecodePayload(s.sealer, rec.StepData, rec.Encrypted)
	if s.expired(payload, rec) {
		return nil, s.expire(ctx, rec)
	}

	now := s.now().UTC()
	if req.StepData != nil {
		payload.Form.Merge(*req.StepData)
	}
	payload.Form.Clear(req.ClearedFields...)
	if req.ExtendTTL == nil || *req.ExtendTTL {
		rec.ExpiresAt = now.Add(s.ttl(req.TTLMinutes))
		payload.ExpiresAt = rec.ExpiresAt
	} else if payload.ExpiresAt.IsZero() {
		payload.ExpiresAt = rec.ExpiresAt
	}
	if payload.SessionID == "" {
		payload.SessionID = rec.SessionID
		payload.CreatedAt = rec.CreatedAt
	}
	if current != "" {
		rec.CurrentStep = current.Code()
	}
	if completed != nil {
		rec.CompletedSteps = domain.DedupeSteps(completed)
	}

	// The record's own flag decides encryption; clients cannot toggle it.
	rec.StepData, err = EncodePayload(s.sealer, payload, rec.Encrypted)
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt = now
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("update onboarding session: %w", err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:      audit.SessionUpdated,
		SessionID: rec.SessionID,
		Email:     rec.Email,
		Detail:    map[string]interface{}{"current_step": rec.CurrentStep, "completed_steps": len(rec.CompletedSteps)},
	})
	return view(rec, payload), nil
}

func (s *service) Delete(ctx context.Context, lookup domain.SessionLookup) (int, error) {
	lookup = normalize(lookup)
	if lookup.Empty() {
		return 0, fmt.Errorf("sessionId or email is required: %w", domain.ErrBadRequest)
	}
	found, err := s.find(ctx, lookup)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for i := range found {
		if err := s.remove(ctx, &found[i], reasonDeleted); err != nil {
			return deleted, err
		}
		deleted++
		s.audit.Record(ctx, audit.Event{Type: audit.SessionDeleted, SessionID: found[i].SessionID, Email: found[i].Email})
	}
	return deleted, nil
}

// SweepExpired scans the whole store and deletes every session whose payload
// expiry has passed. The scan is unbounded and decrypts each record.
func (s *service) SweepExpired(ctx context.Context) (int, error) {
	return s.sweep(ctx, nil)
}

func (s *service) sweep(ctx context.Context, skip func(*domain.OnboardingSession) bool) (int, error) {
	all, err := s.store.ScanAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan onboarding sessions: %w", err)
	}
	var (
		removed  int
		firstErr error
	)
	for i := range all {
		rec := &all[i]
		if skip != nil && skip(rec) {
			continue
		}
		if !s.expired(DecodePayload(s.sealer, rec.StepData, rec.Encrypted), rec) {
			continue
		}
		if err := s.remove(ctx, rec, reasonExpired); err != nil {
			slog.WarnContext(ctx, "failed to delete expired session", "session_id", rec.SessionID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	if removed > 0 {
		metrics.RecordSwept(removed)
		s.audit.Record(ctx, audit.Event{Type: audit.SessionSwept, Detail: map[string]interface{}{"count": removed}})
	}
	return removed, firstErr
}

// expire deletes rec and returns the error the caller should surface.
func (s *service) expire(ctx context.Context, rec *domain.OnboardingSession) error {
	if err := s.remove(ctx, rec, reasonExpired); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Event{Type: audit.SessionExpired, SessionID: rec.SessionID, Email: rec.Email})
	return fmt.Errorf("onboarding session %s: %w", rec.SessionID, domain.ErrExpired)
}

// remove archives rec when an archiver is configured, then deletes it.
// Archive failures are logged; they never block the delete.
func (s *service) remove(ctx context.Context, rec *domain.OnboardingSession, reason string) error {
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, rec, reason); err != nil {
			slog.WarnContext(ctx, "failed to archive session", "session_id", rec.SessionID, "reason", reason, "err", err)
		}
	}
	if err := s.store.Delete(ctx, rec.SessionID); err != nil {
		return fmt.Errorf("delete onboarding session %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *service) find(ctx context.Context, lookup domain.SessionLookup) ([]domain.OnboardingSession, error) {
	if lookup.SessionID != "" {
		rec, err := s.store.Get(ctx, lookup.SessionID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get onboarding session: %w", err)
		}
		return []domain.OnboardingSession{*rec}, nil
	}
	found, err := s.store.ListByEmail(ctx, lookup.Email)
	if err != nil {
		return nil, fmt.Errorf("list sessions for email: %w", err)
	}
	return found, nil
}

func (s *service) resolveInvitation(ctx context.Context, req domain.CreateSessionRequest) *domain.Invitation {
	if s.invitations == nil || req.InvitationToken == nil || strings.TrimSpace(*req.InvitationToken) == "" {
		return nil
	}
	inv, err := s.invitations.Resolve(ctx, strings.TrimSpace(*req.InvitationToken))
	if err != nil {
		slog.InfoContext(ctx, "invitation token rejected, creating open session", "email", req.Email, "err", err)
		return nil
	}
	if normalizeEmail(inv.Email) != req.Email {
		slog.WarnContext(ctx, "invitation email mismatch, creating open session", "email", req.Email, "invitation_id", inv.InvitationID)
		return nil
	}
	if inv.Status != domain.InvitationAccepted {
		if err := s.invitations.Accept(ctx, inv.InvitationID); err != nil {
			slog.WarnContext(ctx, "failed to mark invitation accepted", "invitation_id", inv.InvitationID, "err", err)
		}
	}
	return inv
}

// ttl converts the requested minutes into a duration clamped to MaxTTL.
func (s *service) ttl(minutes *int) time.Duration {
	if minutes == nil || *minutes <= 0 {
		return s.defaultTTL
	}
	d := time.Duration(*minutes) * time.Minute
	if d > s.maxTTL {
		return s.maxTTL
	}
	return d
}

func (s *service) expired(p domain.SessionPayload, rec *domain.OnboardingSession) bool {
	exp := p.EffectiveExpiry(rec)
	return !exp.IsZero() && s.now().After(exp)
}

func prefill(inv *domain.Invitation) domain.FormData {
	var f domain.FormData
	f.FirstName = nonEmpty(inv.FirstName)
	f.LastName = nonEmpty(inv.LastName)
	f.Email = nonEmpty(inv.Email)
	f.Phone = inv.Phone
	f.City = inv.City
	f.State = inv.State
	return f
}

func view(rec *domain.OnboardingSession, p domain.SessionPayload) *domain.SessionData {
	completed := rec.CompletedSteps
	if completed == nil {
		completed = []domain.Step{}
	}
	return &domain.SessionData{
		ID:              rec.SessionID,
		Email:           rec.Email,
		StepData:        p.Form,
		CurrentStep:     domain.StepFromCode(rec.CurrentStep),
		CompletedSteps:  completed,
		ExpiresAt:       p.EffectiveExpiry(rec),
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		Encrypted:       rec.Encrypted,
		InvitationBased: rec.InvitationBased,
		InvitationID:    rec.InvitationID,
	}
}

func mostRecent(list []domain.OnboardingSession) *domain.OnboardingSession {
	best := &list[0]
	for i := 1; i < len(list); i++ {
		if list[i].UpdatedAt.After(best.UpdatedAt) {
			best = &list[i]
		}
	}
	return best
}

func normalize(l domain.SessionLookup) domain.SessionLookup {
	return domain.SessionLookup{SessionID: strings.TrimSpace(l.SessionID), Email: normalizeEmail(l.Email)}
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
