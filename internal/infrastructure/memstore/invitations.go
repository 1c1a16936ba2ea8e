package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coach-onboarding/internal/domain"
)

// InvitationStore keeps invitations in memory.
type InvitationStore struct {
	lock        sync.RWMutex
	invitations map[string]domain.Invitation
}

func NewInvitationStore() *InvitationStore {
	return &InvitationStore{invitations: make(map[string]domain.Invitation)}
}

func (s *InvitationStore) Put(_ context.Context, inv *domain.Invitation) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.invitations[inv.InvitationID] = *inv
	return nil
}

func (s *InvitationStore) Get(_ context.Context, invitationID string) (*domain.Invitation, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return nil, fmt.Errorf("invitation not found: %w", domain.ErrNotFound)
	}
	return &inv, nil
}

func (s *InvitationStore) ListByEmail(_ context.Context, email string) ([]domain.Invitation, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var out []domain.Invitation
	for _, inv := range s.invitations {
		if inv.Email == email {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *InvitationStore) SetStatus(_ context.Context, invitationID, status string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return fmt.Errorf("invitation not found: %w", domain.ErrNotFound)
	}
	now := time.Now().UTC()
	inv.Status = status
	inv.UpdatedAt = now
	if status == domain.InvitationAccepted {
		inv.AcceptedAt = &now
	}
	s.invitations[invitationID] = inv
	return nil
}
