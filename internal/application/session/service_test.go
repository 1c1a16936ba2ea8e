package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/coach-onboarding/internal/domain"
	"github.com/coach-onboarding/internal/infrastructure/memstore"
	"github.com/coach-onboarding/internal/pkg/seal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Put(ctx context.Context, s *domain.OnboardingSession) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockStore) Get(ctx context.Context, sessionID string) (*domain.OnboardingSession, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.OnboardingSession); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) ListByEmail(ctx context.Context, email string) ([]domain.OnboardingSession, error) {
	args := m.Called(ctx, email)
	return args.Get(0).([]domain.OnboardingSession), args.Error(1)
}
func (m *mockStore) ScanAll(ctx context.Context) ([]domain.OnboardingSession, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.OnboardingSession), args.Error(1)
}
func (m *mockStore) Delete(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

type mockSealer struct{ mock.Mock }

func (m *mockSealer) Seal(plaintext []byte) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}
func (m *mockSealer) Open(sealed string) ([]byte, error) {
	args := m.Called(sealed)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

type mockArchiver struct{ mock.Mock }

func (m *mockArchiver) Archive(ctx context.Context, s *domain.OnboardingSession, reason string) error {
	return m.Called(ctx, s, reason).Error(0)
}

type fakeInvitations struct {
	invitations map[string]*domain.Invitation
	accepted    []string
}

func (f *fakeInvitations) Resolve(_ context.Context, token string) (*domain.Invitation, error) {
	inv, ok := f.invitations[token]
	if !ok {
		return nil, domain.ErrInvalidInvitation
	}
	return inv, nil
}
func (f *fakeInvitations) Accept(_ context.Context, id string) error {
	f.accepted = append(f.accepted, id)
	return nil
}

// --- helpers ---

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }

func stepPtr(s domain.Step) *domain.Step { return &s }

func newCipher(t *testing.T, secret string) *seal.Cipher {
	t.Helper()
	c, err := seal.New(secret)
	require.NoError(t, err)
	return c
}

func newTestService(t *testing.T) (Service, *memstore.SessionStore, *clock) {
	t.Helper()
	store := memstore.NewSessionStore()
	clk := newClock()
	svc := NewService(ServiceDeps{
		Store:  store,
		Sealer: newCipher(t, "test-key"),
		Now:    clk.Now,
	})
	return svc, store, clk
}

// --- Get ---

func TestGet_RequiresIdentifier(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), domain.SessionLookup{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), domain.SessionLookup{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGet_ExpiredPayloadDeletesAndReportsExpired(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com", TTLMinutes: intPtr(30)})
	require.NoError(t, err)

	clk.Advance(31 * time.Minute)
	_, err = svc.Get(ctx, domain.SessionLookup{SessionID: created.ID})
	assert.ErrorIs(t, err, domain.ErrExpired)
	assert.Equal(t, 0, store.Len())

	_, err = svc.Get(ctx, domain.SessionLookup{SessionID: created.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGet_PayloadExpiryWinsOverRecord(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com", TTLMinutes: intPtr(30), EncryptSensitiveData: boolPtr(false)})
	require.NoError(t, err)

	// Push the record-level expiry out without touching the payload.
	rec, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	rec.ExpiresAt = clk.Now().Add(10 * time.Hour)
	require.NoError(t, store.Put(ctx, rec))

	clk.Advance(45 * time.Minute)
	_, err = svc.Get(ctx, domain.SessionLookup{Email: "a@b.com"})
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestGet_SweepsOtherExpiredSessions(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "old@example.com", TTLMinutes: intPtr(10)})
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)
	live, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "live@example.com", TTLMinutes: intPtr(60)})
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)
	got, err := svc.Get(ctx, domain.SessionLookup{Email: "live@example.com"})
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)
	assert.Equal(t, 1, store.Len())
}

func TestGet_PicksMostRecentlyUpdated(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	now := clk.Now()
	older := &domain.OnboardingSession{SessionID: "session_1_a", Email: "dup@example.com", CurrentStep: "PERSONAL_INFO", ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now}
	newer := &domain.OnboardingSession{SessionID: "session_2_b", Email: "dup@example.com", CurrentStep: "AGREEMENTS", ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now.Add(time.Minute)}
	require.NoError(t, store.Put(ctx, older))
	require.NoError(t, store.Put(ctx, newer))

	got, err := svc.Get(ctx, domain.SessionLookup{Email: "dup@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "session_2_b", got.ID)
	assert.Equal(t, domain.StepAgreements, got.CurrentStep)
}

func TestGet_SweepsExpiredDuplicateOfSameEmail(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	now := clk.Now()
	old := &domain.OnboardingSession{SessionID: "session_1_old", Email: "a@b.com", CurrentStep: "PERSONAL_INFO", ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now.Add(-2 * time.Hour)}
	live := &domain.OnboardingSession{SessionID: "session_2_live", Email: "a@b.com", CurrentStep: "PERSONAL_INFO", ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Put(ctx, old))
	require.NoError(t, store.Put(ctx, live))

	got, err := svc.Get(ctx, domain.SessionLookup{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, "session_2_live", got.ID)
	assert.Equal(t, 1, store.Len())
	_, err = store.Get(ctx, "session_1_old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- Create ---

func TestCreate_RequiresEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), domain.CreateSessionRequest{Email: "  "})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCreate_Defaults(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	got, err := svc.Create(ctx, domain.CreateSessionRequest{Email: " A@B.com "})
	require.NoError(t, err)

	assert.Regexp(t, `^session_\d+_[0-9a-z]{16}$`, got.ID)
	assert.Equal(t, "a@b.com", got.Email)
	assert.Equal(t, domain.StepPersonalInfo, got.CurrentStep)
	assert.NotNil(t, got.CompletedSteps)
	assert.Empty(t, got.CompletedSteps)
	assert.True(t, got.Encrypted)
	assert.False(t, got.InvitationBased)
	assert.Equal(t, clk.Now().Add(180*time.Minute), got.ExpiresAt)

	rec, err := store.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "PERSONAL_INFO", rec.CurrentStep)
	assert.Equal(t, got.ExpiresAt.Unix(), rec.TTL)
	assert.False(t, json.Valid([]byte(rec.StepData)), "encrypted payload must not be plain JSON")
}

func TestCreate_ClampsTTL(t *testing.T) {
	svc, _, clk := newTestService(t)
	got, err := svc.Create(context.Background(), domain.CreateSessionRequest{Email: "a@b.com", TTLMinutes: intPtr(5000)})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(1440*time.Minute), got.ExpiresAt)
}

func TestCreate_NonPositiveTTLUsesDefault(t *testing.T) {
	svc, _, clk := newTestService(t)
	for _, n := range []int{0, -5} {
		got, err := svc.Create(context.Background(), domain.CreateSessionRequest{Email: "a@b.com", TTLMinutes: intPtr(n)})
		require.NoError(t, err)
		assert.Equal(t, clk.Now().Add(180*time.Minute), got.ExpiresAt)
	}
}

func TestCreate_ReplacesExistingSessionsForEmail(t *testing.T) {
	store := memstore.NewSessionStore()
	archiver := new(mockArchiver)
	clk := newClock()
	svc := NewService(ServiceDeps{Store: store, Sealer: newCipher(t, "k"), Archiver: archiver, Now: clk.Now})
	ctx := context.Background()

	first, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)
	archiver.On("Archive", ctx, mock.MatchedBy(func(s *domain.OnboardingSession) bool { return s.SessionID == first.ID }), reasonSuperseded).Return(nil).Once()

	clk.Advance(time.Millisecond)
	second, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)

	list, err := store.ListByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].SessionID)
	archiver.AssertExpectations(t)
}

func TestCreate_ArchiveFailureDoesNotBlock(t *testing.T) {
	store := memstore.NewSessionStore()
	archiver := new(mockArchiver)
	archiver.On("Archive", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("s3 down"))
	svc := NewService(ServiceDeps{Store: store, Sealer: newCipher(t, "k"), Archiver: archiver})
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestCreate_PersistFailure(t *testing.T) {
	store := new(mockStore)
	store.On("ListByEmail", mock.Anything, "a@b.com").Return([]domain.OnboardingSession{}, nil)
	store.On("Put", mock.Anything, mock.Anything).Return(errors.New("throttled"))
	svc := NewService(ServiceDeps{Store: store, Sealer: newCipher(t, "k")})

	_, err := svc.Create(context.Background(), domain.CreateSessionRequest{Email: "a@b.com"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrBadRequest))
	store.AssertExpectations(t)
}

func TestCreate_UnencryptedNeverTouchesSealer(t *testing.T) {
	store := memstore.NewSessionStore()
	sealer := new(mockSealer)
	svc := NewService(ServiceDeps{Store: store, Sealer: sealer})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com", EncryptSensitiveData: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, created.Encrypted)

	_, err = svc.Update(ctx, domain.UpdateSessionRequest{
		SessionID: created.ID,
		StepData:  &domain.FormData{PersonalInfo: domain.PersonalInfo{FirstName: strPtr("Ada")}},
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, domain.SessionLookup{SessionID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, "Ada", *got.StepData.FirstName)

	rec, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(rec.StepData)))
	sealer.AssertNotCalled(t, "Seal", mock.Anything)
	sealer.AssertNotCalled(t, "Open", mock.Anything)
}

func TestCreate_InvitationPrefillsAndAccepts(t *testing.T) {
	invs := &fakeInvitations{invitations: map[string]*domain.Invitation{
		"tok": {InvitationID: "inv-1", Email: "coach@example.com", FirstName: "Grace", LastName: "Hopper", City: strPtr("Austin"), Status: domain.InvitationPending},
	}}
	store := memstore.NewSessionStore()
	svc := NewService(ServiceDeps{Store: store, Sealer: newCipher(t, "k"), Invitations: invs})

	got, err := svc.Create(context.Background(), domain.CreateSessionRequest{Email: "Coach@Example.com", InvitationToken: strPtr("tok")})
	require.NoError(t, err)
	assert.True(t, got.InvitationBased)
	require.NotNil(t, got.InvitationID)
	assert.Equal(t, "inv-1", *got.InvitationID)
	assert.Equal(t, "Grace", *got.StepData.FirstName)
	assert.Equal(t, "Austin", *got.StepData.City)
	assert.Equal(t, []string{"inv-1"}, invs.accepted)
}

func TestCreate_InvalidInvitationStillCreatesOpenSession(t *testing.T) {
	invs := &fakeInvitations{invitations: map[string]*domain.Invitation{
		"other": {InvitationID: "inv-2", Email: "someone@else.com", Status: domain.InvitationPending},
	}}
	svc := NewService(ServiceDeps{Store: memstore.NewSessionStore(), Sealer: newCipher(t, "k"), Invitations: invs})
	ctx := context.Background()

	for _, token := range []string{"bogus", "other"} {
		got, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "coach@example.com", InvitationToken: strPtr(token)})
		require.NoError(t, err)
		assert.False(t, got.InvitationBased, token)
		assert.Nil(t, got.InvitationID, token)
	}
	assert.Empty(t, invs.accepted)
}

// --- Update ---

func TestUpdate_RequiresIdentifier(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Update(context.Background(), domain.UpdateSessionRequest{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Update(context.Background(), domain.UpdateSessionRequest{SessionID: "session_0_missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_MergesStepData(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, StepData: &domain.FormData{PersonalInfo: domain.PersonalInfo{FirstName: strPtr("Ada")}}})
	require.NoError(t, err)
	got, err := svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, StepData: &domain.FormData{SchoolSetup: domain.SchoolSetup{NameOfInstitution: strPtr("X")}}})
	require.NoError(t, err)

	assert.Equal(t, "Ada", *got.StepData.FirstName)
	assert.Equal(t, "X", *got.StepData.NameOfInstitution)

	fetched, err := svc.Get(ctx, domain.SessionLookup{SessionID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, got.StepData, fetched.StepData)
}

func TestUpdate_ClearedFieldsAreRemoved(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, StepData: &domain.FormData{PersonalInfo: domain.PersonalInfo{FirstName: strPtr("Ada")}, RoleExperience: domain.RoleExperience{Bio: strPtr("old bio")}}})
	require.NoError(t, err)

	got, err := svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, ClearedFields: []string{"bio"}})
	require.NoError(t, err)
	assert.Nil(t, got.StepData.Bio)
	assert.Equal(t, "Ada", *got.StepData.FirstName)

	fetched, err := svc.Get(ctx, domain.SessionLookup{SessionID: created.ID})
	require.NoError(t, err)
	assert.Nil(t, fetched.StepData.Bio)
}

func TestUpdate_ExtendTTL(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com", TTLMinutes: intPtr(30)})
	require.NoError(t, err)

	clk.Advance(20 * time.Minute)
	kept, err := svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, ExtendTTL: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, created.ExpiresAt, kept.ExpiresAt)

	extended, err := svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, TTLMinutes: intPtr(60)})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(60*time.Minute), extended.ExpiresAt)
}

func TestUpdate_Expired(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com", TTLMinutes: intPtr(5)})
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)
	_, err = svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID})
	assert.ErrorIs(t, err, domain.ErrExpired)
	assert.Equal(t, 0, store.Len())
}

func TestUpdate_StepsAndEncryptionFlag(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)

	got, err := svc.Update(ctx, domain.UpdateSessionRequest{
		Email:          "A@B.COM",
		CurrentStep:    stepPtr(domain.StepSchoolSetup),
		CompletedSteps: []domain.Step{domain.StepPersonalInfo, "ROLE_EXPERIENCE", domain.StepPersonalInfo},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepSchoolSetup, got.CurrentStep)
	assert.Equal(t, []domain.Step{domain.StepPersonalInfo, domain.StepRoleExperience}, got.CompletedSteps)
	assert.True(t, got.Encrypted)

	rec, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "SCHOOL_SETUP", rec.CurrentStep)
	assert.True(t, rec.Encrypted)
}

func TestUpdate_RejectsUnknownSteps(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, CurrentStep: stepPtr("payment-details")})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	_, err = svc.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, CompletedSteps: []domain.Step{domain.StepPersonalInfo, "BONUS_ROUND"}})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	got, err := svc.Get(ctx, domain.SessionLookup{SessionID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StepPersonalInfo, got.CurrentStep)
	assert.Empty(t, got.CompletedSteps)
}

// --- payload decoding ---

func TestGet_WrongKeyDegradesToEmptyForm(t *testing.T) {
	store := memstore.NewSessionStore()
	clk := newClock()
	writer := NewService(ServiceDeps{Store: store, Sealer: newCipher(t, "key-one"), Now: clk.Now})
	reader := NewService(ServiceDeps{Store: store, Sealer: newCipher(t, "key-two"), Now: clk.Now})
	ctx := context.Background()

	created, err := writer.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com"})
	require.NoError(t, err)
	_, err = writer.Update(ctx, domain.UpdateSessionRequest{SessionID: created.ID, StepData: &domain.FormData{PersonalInfo: domain.PersonalInfo{FirstName: strPtr("Ada")}}})
	require.NoError(t, err)

	got, err := reader.Get(ctx, domain.SessionLookup{SessionID: created.ID})
	require.NoError(t, err)
	assert.Nil(t, got.StepData.FirstName)
	assert.Equal(t, created.ExpiresAt, got.ExpiresAt)

	right, err := writer.Get(ctx, domain.SessionLookup{SessionID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, "Ada", *right.StepData.FirstName)
}

func TestDecodePayload_LegacyFlatJSON(t *testing.T) {
	raw := `{"firstName":"Ada","nameOfInstitution":"X","expires_at":"2026-03-01T15:00:00Z","session_id":"s1"}`
	p := DecodePayload(nil, raw, true)
	assert.Equal(t, "Ada", *p.Form.FirstName)
	assert.Equal(t, "X", *p.Form.NameOfInstitution)
	assert.Equal(t, "s1", p.SessionID)
	assert.Equal(t, time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC), p.ExpiresAt)
}

func TestDecodePayload_Garbage(t *testing.T) {
	assert.Equal(t, domain.SessionPayload{}, DecodePayload(newCipher(t, "k"), "not json at all", true))
	assert.Equal(t, domain.SessionPayload{}, DecodePayload(nil, "", false))
}

func TestEncodePayload_RequiresSealer(t *testing.T) {
	_, err := EncodePayload(nil, domain.SessionPayload{}, true)
	assert.Error(t, err)
}

// --- Delete / Sweep ---

func TestDelete_RequiresIdentifier(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Delete(context.Background(), domain.SessionLookup{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestDelete_AllMatchesForEmail(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	now := clk.Now()
	for _, id := range []string{"session_1_a", "session_2_b"} {
		require.NoError(t, store.Put(ctx, &domain.OnboardingSession{SessionID: id, Email: "a@b.com", ExpiresAt: now.Add(-time.Hour), CreatedAt: now, UpdatedAt: now}))
	}
	require.NoError(t, store.Put(ctx, &domain.OnboardingSession{SessionID: "session_3_c", Email: "c@d.com", ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now}))

	n, err := svc.Delete(ctx, domain.SessionLookup{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, store.Len())

	n, err = svc.Delete(ctx, domain.SessionLookup{SessionID: "session_9_none"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepExpired(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "short@example.com", TTLMinutes: intPtr(5)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateSessionRequest{Email: "long@example.com", TTLMinutes: intPtr(500)})
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestSweepExpired_ScanFailure(t *testing.T) {
	store := new(mockStore)
	store.On("ScanAll", mock.Anything).Return([]domain.OnboardingSession(nil), errors.New("boom"))
	svc := NewService(ServiceDeps{Store: store})
	_, err := svc.SweepExpired(context.Background())
	assert.Error(t, err)
}

// The documented request sequence: create, read, update, delete, read.
func TestSessionLifecycle(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateSessionRequest{Email: "a@b.com", TTLMinutes: intPtr(30)})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(30*time.Minute), created.ExpiresAt)

	got, err := svc.Get(ctx, domain.SessionLookup{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	updated, err := svc.Update(ctx, domain.UpdateSessionRequest{
		Email:       "a@b.com",
		CurrentStep: stepPtr(domain.StepSchoolSetup),
		StepData:    &domain.FormData{SchoolSetup: domain.SchoolSetup{NameOfInstitution: strPtr("X")}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepSchoolSetup, updated.CurrentStep)
	assert.Equal(t, "X", *updated.StepData.NameOfInstitution)

	n, err := svc.Delete(ctx, domain.SessionLookup{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Get(ctx, domain.SessionLookup{Email: "a@b.com"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
