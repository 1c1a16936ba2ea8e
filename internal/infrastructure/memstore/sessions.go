// Package memstore holds process-local stores used for development and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coach-onboarding/internal/domain"
)

// SessionStore keeps onboarding sessions in a map guarded by a RWMutex.
type SessionStore struct {
	lock     sync.RWMutex
	sessions map[string]domain.OnboardingSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.OnboardingSession)}
}

func (s *SessionStore) Put(_ context.Context, sess *domain.OnboardingSession) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	sess.TTL = sess.ExpiresAt.Unix()
	s.sessions[sess.SessionID] = clone(*sess)
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.OnboardingSession, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("onboarding session not found: %w", domain.ErrNotFound)
	}
	out := clone(sess)
	return &out, nil
}

func (s *SessionStore) ListByEmail(_ context.Context, email string) ([]domain.OnboardingSession, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var out []domain.OnboardingSession
	for _, sess := range s.sessions {
		if sess.Email == email {
			out = append(out, clone(sess))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *SessionStore) ScanAll(_ context.Context) ([]domain.OnboardingSession, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make([]domain.OnboardingSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, clone(sess))
	}
	sortByCreated(out)
	return out, nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Len reports how many sessions are stored, expired or not.
func (s *SessionStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.sessions)
}

func clone(s domain.OnboardingSession) domain.OnboardingSession {
	if s.CompletedSteps != nil {
		s.CompletedSteps = append([]domain.Step(nil), s.CompletedSteps...)
	}
	if s.InvitationID != nil {
		v := *s.InvitationID
		s.InvitationID = &v
	}
	return s
}

// sortByCreated gives callers the insertion order a table scan would
// approximate, keeping "first match" deterministic.
func sortByCreated(list []domain.OnboardingSession) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].SessionID < list[j].SessionID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
