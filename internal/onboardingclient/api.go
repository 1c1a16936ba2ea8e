// Package onboardingclient is the Go counterpart of the onboarding wizard's
// client state: it talks to the session API, caches progress locally and
// auto-saves edits.
package onboardingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coach-onboarding/internal/domain"
)

// APIError is a non-2xx answer from the onboarding API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("onboarding api: %d %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match API failures against the domain sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return domain.ErrBadRequest
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusGone:
		return domain.ErrExpired
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	}
	return nil
}

// APIClient calls the onboarding session and invitation endpoints.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// APIConfig holds client configuration.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

func NewAPIClient(cfg APIConfig) *APIClient {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &APIClient{baseURL: strings.TrimRight(cfg.BaseURL, "/"), httpClient: hc}
}

func (c *APIClient) GetByEmail(ctx context.Context, email string) (*domain.SessionData, error) {
	var out domain.SessionData
	if err := c.do(ctx, http.MethodGet, "/api/onboarding/session?email="+url.QueryEscape(email), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Create(ctx context.Context, req domain.CreateSessionRequest) (*domain.SessionData, error) {
	var out domain.SessionData
	if err := c.do(ctx, http.MethodPost, "/api/onboarding/session", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Update(ctx context.Context, req domain.UpdateSessionRequest) (*domain.SessionData, error) {
	var out domain.SessionData
	if err := c.do(ctx, http.MethodPut, "/api/onboarding/session", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Delete(ctx context.Context, lookup domain.SessionLookup) (int, error) {
	q := url.Values{}
	if lookup.SessionID != "" {
		q.Set("sessionId", lookup.SessionID)
	}
	if lookup.Email != "" {
		q.Set("email", lookup.Email)
	}
	var out struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/onboarding/session?"+q.Encode(), nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

func (c *APIClient) ValidateInvitation(ctx context.Context, token string) (*domain.InvitationValidation, error) {
	var out domain.InvitationValidation
	if err := c.do(ctx, http.MethodGet, "/api/onboarding/validate?token="+url.QueryEscape(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &env)
		if env.Error == "" {
			env.Error = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
