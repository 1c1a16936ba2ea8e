// Package redisstore is a Redis-backed onboarding session store.
//
// Layout: one JSON value per session under <prefix>session:<id>, a set of
// ids per email under <prefix>email:<email>, and a set of every id under
// <prefix>all for the expiry sweep. Index sets are pruned lazily when they
// point at keys Redis has already expired.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/coach-onboarding/internal/domain"
)

// retention keeps keys alive past their logical expiry so reads can still
// report the session as expired rather than missing.
const retention = 24 * time.Hour

// SessionStore implements the onboarding session store on Redis.
type SessionStore struct {
	rdb    goredis.UniversalClient
	prefix string
}

// New connects to Redis and verifies the connection with a ping.
func New(addr, password string, db int) (*SessionStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb goredis.UniversalClient) *SessionStore {
	return &SessionStore{rdb: rdb, prefix: "onboarding:"}
}

// record is the stored JSON shape. domain.OnboardingSession hides StepData
// from JSON, so it cannot be serialised directly.
type record struct {
	SessionID       string        `json:"session_id"`
	Email           string        `json:"email"`
	StepData        string        `json:"step_data"`
	CurrentStep     string        `json:"current_step"`
	CompletedSteps  []domain.Step `json:"completed_steps"`
	ExpiresAt       time.Time     `json:"expires_at"`
	Encrypted       bool          `json:"encrypted"`
	InvitationBased bool          `json:"invitation_based"`
	InvitationID    *string       `json:"invitation_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func toRecord(s *domain.OnboardingSession) record {
	return record{
		SessionID:       s.SessionID,
		Email:           s.Email,
		StepData:        s.StepData,
		CurrentStep:     s.CurrentStep,
		CompletedSteps:  s.CompletedSteps,
		ExpiresAt:       s.ExpiresAt,
		Encrypted:       s.Encrypted,
		InvitationBased: s.InvitationBased,
		InvitationID:    s.InvitationID,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func (r record) session() domain.OnboardingSession {
	return domain.OnboardingSession{
		SessionID:       r.SessionID,
		Email:           r.Email,
		StepData:        r.StepData,
		CurrentStep:     r.CurrentStep,
		CompletedSteps:  r.CompletedSteps,
		ExpiresAt:       r.ExpiresAt,
		TTL:             r.ExpiresAt.Unix(),
		Encrypted:       r.Encrypted,
		InvitationBased: r.InvitationBased,
		InvitationID:    r.InvitationID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (s *SessionStore) sessionKey(id string) string { return s.prefix + "session:" + id }

func (s *SessionStore) emailKey(email string) string { return s.prefix + "email:" + email }

func (s *SessionStore) allKey() string { return s.prefix + "all" }

func (s *SessionStore) Put(ctx context.Context, sess *domain.OnboardingSession) error {
	if sess.SessionID == "" {
		return errors.New("redisstore: missing session_id")
	}
	sess.TTL = sess.ExpiresAt.Unix()
	data, err := json.Marshal(toRecord(sess))
	if err != nil {
		return fmt.Errorf("redisstore: marshal: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt) + retention
	if ttl <= 0 {
		ttl = retention
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.SessionID), data, ttl)
	pipe.SAdd(ctx, s.emailKey(sess.Email), sess.SessionID)
	pipe.SAdd(ctx, s.allKey(), sess.SessionID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.OnboardingSession, error) {
	val, err := s.rdb.Get(ctx, s.sessionKey(sessionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("onboarding session not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("redisstore: unmarshal: %w", err)
	}
	sess := rec.session()
	return &sess, nil
}

func (s *SessionStore) ListByEmail(ctx context.Context, email string) ([]domain.OnboardingSession, error) {
	return s.load(ctx, s.emailKey(email))
}

func (s *SessionStore) ScanAll(ctx context.Context) ([]domain.OnboardingSession, error) {
	return s.load(ctx, s.allKey())
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.allKey(), sessionID)
	if sess != nil {
		pipe.SRem(ctx, s.emailKey(sess.Email), sessionID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// load resolves the ids in an index set, pruning ids whose keys are gone.
func (s *SessionStore) load(ctx context.Context, setKey string) ([]domain.OnboardingSession, error) {
	ids, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	var (
		out   []domain.OnboardingSession
		stale []interface{}
	)
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("redisstore: unmarshal %s: %w", ids[i], err)
		}
		out = append(out, rec.session())
	}
	if len(stale) > 0 {
		_ = s.rdb.SRem(ctx, setKey, stale...).Err()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
