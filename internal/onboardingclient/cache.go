package onboardingclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coach-onboarding/internal/domain"
)

// Progress is the locally cached view of a session.
type Progress struct {
	SessionID      string          `json:"sessionId,omitempty"`
	Email          string          `json:"email"`
	CurrentStep    domain.Step     `json:"currentStep"`
	CompletedSteps []domain.Step   `json:"completedSteps"`
	StepData       domain.FormData `json:"stepData"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

func progressFromSession(d *domain.SessionData) *Progress {
	completed := d.CompletedSteps
	if completed == nil {
		completed = []domain.Step{}
	}
	return &Progress{
		SessionID:      d.ID,
		Email:          d.Email,
		CurrentStep:    d.CurrentStep,
		CompletedSteps: append([]domain.Step(nil), completed...),
		StepData:       d.StepData,
		LastUpdated:    d.UpdatedAt,
	}
}

func (p *Progress) clone() *Progress {
	if p == nil {
		return nil
	}
	out := *p
	out.CompletedSteps = append([]domain.Step(nil), p.CompletedSteps...)
	return &out
}

// Cache persists progress and invitation data between runs. Load methods
// return nil, nil when nothing is cached.
type Cache interface {
	LoadProgress() (*Progress, error)
	SaveProgress(p *Progress) error
	LoadInvitation() (*domain.Invitation, error)
	SaveInvitation(inv *domain.Invitation) error
	Clear() error
}

const (
	progressFile   = "onboarding-progress.json"
	invitationFile = "onboarding-invitation.json"
)

// FileCache stores each entry as a JSON file in Dir.
type FileCache struct {
	Dir string
	mu  sync.Mutex
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{Dir: dir}, nil
}

func (c *FileCache) LoadProgress() (*Progress, error) {
	var p Progress
	ok, err := c.read(progressFile, &p)
	if !ok || err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *FileCache) SaveProgress(p *Progress) error { return c.write(progressFile, p) }

func (c *FileCache) LoadInvitation() (*domain.Invitation, error) {
	var inv domain.Invitation
	ok, err := c.read(invitationFile, &inv)
	if !ok || err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *FileCache) SaveInvitation(inv *domain.Invitation) error { return c.write(invitationFile, inv) }

func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range []string{progressFile, invitationFile} {
		if err := os.Remove(filepath.Join(c.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (c *FileCache) read(name string, v interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := os.ReadFile(filepath.Join(c.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// write replaces the file atomically so a crash never leaves half a document.
func (c *FileCache) write(name string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tmp, err := os.CreateTemp(c.Dir, name+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(c.Dir, name))
}

// MemoryCache keeps entries in process memory.
type MemoryCache struct {
	mu         sync.Mutex
	progress   *Progress
	invitation *domain.Invitation
}

func NewMemoryCache() *MemoryCache { return &MemoryCache{} }

func (c *MemoryCache) LoadProgress() (*Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress.clone(), nil
}

func (c *MemoryCache) SaveProgress(p *Progress) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = p.clone()
	return nil
}

func (c *MemoryCache) LoadInvitation() (*domain.Invitation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invitation == nil {
		return nil, nil
	}
	inv := *c.invitation
	return &inv, nil
}

func (c *MemoryCache) SaveInvitation(inv *domain.Invitation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inv == nil {
		c.invitation = nil
		return nil
	}
	cp := *inv
	c.invitation = &cp
	return nil
}

func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress, c.invitation = nil, nil
	return nil
}
