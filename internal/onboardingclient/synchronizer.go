package onboardingclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coach-onboarding/internal/domain"
	"github.com/coach-onboarding/internal/pkg/validate"
)

// DefaultDebounce is the idle time after the last edit before auto-save.
const DefaultDebounce = 5 * time.Second

// SyncState reports how far the local state can be trusted.
type SyncState string

const (
	// SyncFresh means the last server exchange succeeded.
	SyncFresh SyncState = "fresh"
	// SyncStale means the server could not be read and cached data is shown.
	SyncStale SyncState = "stale"
	// SyncError means the last save failed; local edits are not persisted.
	SyncError SyncState = "error"
)

// ErrClosed is returned by operations on a closed Synchronizer.
var ErrClosed = errors.New("onboardingclient: synchronizer closed")

// ErrNoEmail is returned by Save when no email can be resolved.
var ErrNoEmail = errors.New("onboardingclient: no email to save progress under")

// SessionAPI is the slice of APIClient the synchronizer uses.
type SessionAPI interface {
	GetByEmail(ctx context.Context, email string) (*domain.SessionData, error)
	Create(ctx context.Context, req domain.CreateSessionRequest) (*domain.SessionData, error)
	Update(ctx context.Context, req domain.UpdateSessionRequest) (*domain.SessionData, error)
	ValidateInvitation(ctx context.Context, token string) (*domain.InvitationValidation, error)
}

// Options configures a Synchronizer.
type Options struct {
	// Step is the wizard step the owning page renders.
	Step  domain.Step
	API   SessionAPI
	Cache Cache
	// InvitationToken is the token supplied in the page URL, if any.
	InvitationToken string
	// Bypass skips invitation handling and uses a placeholder invitee.
	Bypass   bool
	Debounce time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// State is a snapshot of everything a wizard page renders.
type State struct {
	FormData          domain.FormData
	Invitation        *domain.Invitation
	Progress          *Progress
	Loading           bool
	Saving            bool
	LastSaved         time.Time
	HasUnsavedChanges bool
	Errors            map[string]string
	Sync              SyncState
}

// Synchronizer merges invitation, cached and server progress into one form
// state and pushes edits back with a debounced auto-save. It is safe for
// concurrent use.
type Synchronizer struct {
	step     domain.Step
	api      SessionAPI
	cache    Cache
	token    string
	bypass   bool
	debounce time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	form       domain.FormData
	invitation *domain.Invitation
	progress   *Progress
	loading    bool
	saving     bool
	lastSaved  time.Time
	unsaved    bool
	edits      uint64
	cleared    map[string]bool
	errors     map[string]string
	sync       SyncState
	timer      *time.Timer
	closed     bool
}

func New(opts Options) *Synchronizer {
	s := &Synchronizer{
		step:     opts.Step,
		api:      opts.API,
		cache:    opts.Cache,
		token:    opts.InvitationToken,
		bypass:   opts.Bypass,
		debounce: opts.Debounce,
		log:      opts.Logger,
		now:      opts.Now,
		errors:   map[string]string{},
		cleared:  map[string]bool{},
		sync:     SyncFresh,
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cache == nil {
		s.cache = NewMemoryCache()
	}
	if s.step == "" {
		s.step = domain.StepPersonalInfo
	}
	s.log = s.log.With("component", "onboarding-sync", "step", string(s.step))
	return s
}

// placeholderInvitation is used in bypass mode when nothing is cached.
func placeholderInvitation() *domain.Invitation {
	return &domain.Invitation{
		InvitationID: "bypass",
		Email:        "test.coach@example.com",
		FirstName:    "Test",
		LastName:     "Coach",
		Status:       domain.InvitationPending,
	}
}

// Init loads state from the URL token, the cache and the server. Failures
// never abort initialisation; they degrade to whatever data is available and
// mark the state stale.
func (s *Synchronizer) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loading = true
	s.mu.Unlock()

	stale := false

	inv, err := s.cache.LoadInvitation()
	if err != nil {
		s.log.WarnContext(ctx, "failed to read cached invitation", "err", err)
	}
	if s.token != "" && !s.bypass && s.api != nil {
		fresh, err := s.resolveToken(ctx)
		if err != nil {
			s.log.WarnContext(ctx, "invitation validation failed, using cached data", "err", err)
			stale = true
		} else if fresh != nil {
			inv = fresh
		}
	}
	progress, err := s.cache.LoadProgress()
	if err != nil {
		s.log.WarnContext(ctx, "failed to read cached progress", "err", err)
	}

	var form domain.FormData
	if s.bypass && inv == nil {
		inv = placeholderInvitation()
	}
	if inv != nil {
		form.Merge(prefillFromInvitation(inv))
	}

	var baseline time.Time
	if progress != nil {
		form.Merge(progress.StepData)
		baseline = progress.LastUpdated
	}

	email := ""
	if inv != nil {
		email = normalizeEmail(inv.Email)
	}
	if email == "" && progress != nil {
		email = progress.Email
	}

	if email != "" && s.api != nil {
		server, err := s.api.GetByEmail(ctx, email)
		switch {
		case err == nil:
			if server.UpdatedAt.After(baseline) {
				progress = progressFromSession(server)
				form.Merge(server.StepData)
				s.cacheProgress(ctx, progress)
			}
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrExpired):
		default:
			s.log.WarnContext(ctx, "failed to fetch server progress, using cached data", "email", email, "err", err)
			stale = true
		}
	}

	if progress == nil && email != "" && s.api != nil && !stale {
		created, err := s.api.Create(ctx, s.createRequest(email, inv))
		if err != nil {
			s.log.WarnContext(ctx, "failed to create onboarding session", "email", email, "err", err)
			stale = true
		} else {
			progress = progressFromSession(created)
			form.Merge(created.StepData)
			s.cacheProgress(ctx, progress)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.closed {
		return ErrClosed
	}
	s.invitation = inv
	s.progress = progress
	// Edits made while loading win over loaded values.
	form.Merge(s.form)
	s.form = form
	if stale {
		s.sync = SyncStale
	} else {
		s.sync = SyncFresh
	}
	return nil
}

func (s *Synchronizer) resolveToken(ctx context.Context) (*domain.Invitation, error) {
	res, err := s.api.ValidateInvitation(ctx, s.token)
	if err != nil {
		return nil, err
	}
	if !res.Valid || res.Invitation == nil {
		s.log.InfoContext(ctx, "invitation token not valid", "status", res.Status, "reason", res.Error)
		return nil, nil
	}
	if err := s.cache.SaveInvitation(res.Invitation); err != nil {
		s.log.WarnContext(ctx, "failed to cache invitation", "err", err)
	}
	return res.Invitation, nil
}

func (s *Synchronizer) createRequest(email string, inv *domain.Invitation) domain.CreateSessionRequest {
	req := domain.CreateSessionRequest{Email: email}
	if s.token != "" && !s.bypass && inv != nil && inv.InvitationID != "bypass" {
		tok := s.token
		req.InvitationToken = &tok
	}
	return req
}

// UpdateField sets one form field by its JSON name, clears that field's
// validation error and restarts the auto-save timer.
func (s *Synchronizer) UpdateField(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.form.Set(name, value); err != nil {
		return err
	}
	// Clears travel as explicit nulls; an absent field would leave the
	// server's value in place.
	if value == nil {
		s.cleared[name] = true
	} else {
		delete(s.cleared, name)
	}
	s.unsaved = true
	s.edits++
	delete(s.errors, name)
	s.scheduleSaveLocked()
	return nil
}

func (s *Synchronizer) scheduleSaveLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.autoSave)
}

func (s *Synchronizer) autoSave() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Save(ctx); err != nil && !errors.Is(err, ErrClosed) {
		s.log.Warn("auto-save failed", "err", err)
	}
}

// Save pushes the whole form to the server, merging into stored step data.
// Completed steps are sent unchanged.
func (s *Synchronizer) Save(ctx context.Context) error {
	return s.save(ctx, nil)
}

func (s *Synchronizer) save(ctx context.Context, completed []domain.Step) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.api == nil {
		s.mu.Unlock()
		return fmt.Errorf("onboardingclient: no api configured")
	}
	email := s.emailLocked()
	if email == "" {
		s.mu.Unlock()
		return ErrNoEmail
	}
	form := s.form
	if completed == nil && s.progress != nil {
		completed = append([]domain.Step(nil), s.progress.CompletedSteps...)
	}
	edits := s.edits
	cleared := make([]string, 0, len(s.cleared))
	for name := range s.cleared {
		cleared = append(cleared, name)
	}
	sort.Strings(cleared)
	inv := s.invitation
	s.saving = true
	s.mu.Unlock()

	step := s.step
	req := domain.UpdateSessionRequest{
		Email:          email,
		CurrentStep:    &step,
		StepData:       &form,
		ClearedFields:  cleared,
		CompletedSteps: completed,
	}
	data, err := s.api.Update(ctx, req)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrExpired) {
		// The server forgot the session; start a new one and replay.
		if _, err = s.api.Create(ctx, s.createRequest(email, inv)); err == nil {
			data, err = s.api.Update(ctx, req)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if s.closed {
		return ErrClosed
	}
	if err != nil {
		s.sync = SyncError
		return fmt.Errorf("save onboarding progress: %w", err)
	}
	s.progress = progressFromSession(data)
	s.lastSaved = s.now()
	if s.edits == edits {
		s.unsaved = false
		s.cleared = map[string]bool{}
	}
	s.sync = SyncFresh
	s.cacheProgress(ctx, s.progress)
	return nil
}

// Validate checks the current step and replaces the error map.
func (s *Synchronizer) Validate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = validateStep(s.step, s.form)
	return len(s.errors) == 0
}

// MarkStepComplete validates the step, records it as completed and saves.
// ok tells the caller whether it may navigate on; next is the step to go to,
// empty after the last one.
func (s *Synchronizer) MarkStepComplete(ctx context.Context) (next domain.Step, ok bool) {
	if !s.Validate() {
		return "", false
	}
	s.mu.Lock()
	var completed []domain.Step
	if s.progress != nil {
		completed = append(completed, s.progress.CompletedSteps...)
	}
	completed = domain.AppendStep(completed, s.step)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	if err := s.save(ctx, completed); err != nil {
		s.log.WarnContext(ctx, "failed to mark step complete", "err", err)
		return "", false
	}
	return s.step.Next(), true
}

// Close stops the auto-save timer. Later updates are ignored.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Synchronizer) FormData() domain.FormData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

func (s *Synchronizer) Errors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyErrors(s.errors)
}

func (s *Synchronizer) Progress() *Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.clone()
}

// ProgressPercent is the share of known wizard steps completed, 0 to 100.
func (s *Synchronizer) ProgressPercent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return 0
	}
	return int(math.Round(100 * float64(len(s.progress.CompletedSteps)) / float64(len(domain.Steps))))
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inv *domain.Invitation
	if s.invitation != nil {
		cp := *s.invitation
		inv = &cp
	}
	return State{
		FormData:          s.form,
		Invitation:        inv,
		Progress:          s.progress.clone(),
		Loading:           s.loading,
		Saving:            s.saving,
		LastSaved:         s.lastSaved,
		HasUnsavedChanges: s.unsaved,
		Errors:            copyErrors(s.errors),
		Sync:              s.sync,
	}
}

func (s *Synchronizer) emailLocked() string {
	if s.invitation != nil && s.invitation.Email != "" {
		return normalizeEmail(s.invitation.Email)
	}
	if s.progress != nil && s.progress.Email != "" {
		return s.progress.Email
	}
	// A half-typed address must not open a session under a bogus key.
	if s.form.Email != nil {
		if e := normalizeEmail(*s.form.Email); validate.Email(e) {
			return e
		}
	}
	return ""
}

func (s *Synchronizer) cacheProgress(ctx context.Context, p *Progress) {
	if err := s.cache.SaveProgress(p); err != nil {
		s.log.WarnContext(ctx, "failed to cache progress", "err", err)
	}
}

func prefillFromInvitation(inv *domain.Invitation) domain.FormData {
	var f domain.FormData
	f.FirstName = nonEmpty(inv.FirstName)
	f.LastName = nonEmpty(inv.LastName)
	f.Email = nonEmpty(normalizeEmail(inv.Email))
	if inv.Phone != nil {
		f.Phone = nonEmpty(*inv.Phone)
	}
	if inv.City != nil {
		f.City = nonEmpty(*inv.City)
	}
	if inv.State != nil {
		f.State = nonEmpty(*inv.State)
	}
	return f
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func copyErrors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
