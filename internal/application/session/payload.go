package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coach-onboarding/internal/domain"
)

// Sealer encrypts and decrypts stored payloads.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// legacyMeta is the metadata older records kept inline with the form fields.
type legacyMeta struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Encrypted bool      `json:"encrypted"`
}

// DecodePayload reads a stored payload. Encrypted records are opened first;
// if that fails the raw value is tried as plain JSON, and anything still
// unreadable decodes to an empty payload. Records stored unencrypted never
// touch the sealer.
func DecodePayload(sealer Sealer, raw string, encrypted bool) domain.SessionPayload {
	if raw == "" {
		return domain.SessionPayload{}
	}
	if encrypted && sealer != nil {
		if plain, err := sealer.Open(raw); err == nil {
			if p, ok := parsePayload(plain); ok {
				return p
			}
		}
	}
	if p, ok := parsePayload([]byte(raw)); ok {
		return p
	}
	return domain.SessionPayload{}
}

// parsePayload accepts both the enveloped form ({"form": {...}}) and the flat
// legacy layout where form fields and metadata share one object.
func parsePayload(b []byte) (domain.SessionPayload, bool) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return domain.SessionPayload{}, false
	}
	if _, enveloped := keys["form"]; enveloped {
		var p domain.SessionPayload
		if err := json.Unmarshal(b, &p); err != nil {
			return domain.SessionPayload{}, false
		}
		return p, true
	}
	var meta legacyMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		meta = legacyMeta{}
	}
	var form domain.FormData
	if err := json.Unmarshal(b, &form); err != nil {
		form = domain.FormData{}
	}
	return domain.SessionPayload{
		SessionID: meta.SessionID,
		CreatedAt: meta.CreatedAt,
		ExpiresAt: meta.ExpiresAt,
		Encrypted: meta.Encrypted,
		Form:      form,
	}, true
}

// EncodePayload serialises p, sealing it when encrypt is set.
func EncodePayload(sealer Sealer, p domain.SessionPayload, encrypt bool) (string, error) {
	if p.SchemaVersion == 0 {
		p.SchemaVersion = domain.FormSchemaVersion
	}
	p.Encrypted = encrypt
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal session payload: %w", err)
	}
	if !encrypt {
		return string(raw), nil
	}
	if sealer == nil {
		return "", fmt.Errorf("encryption requested but no sealer configured")
	}
	return sealer.Seal(raw)
}
