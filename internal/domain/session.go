package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// OnboardingSession is the persisted onboarding session record.
// StepData holds the sealed payload, or plain JSON when Encrypted is false.
// TTL mirrors ExpiresAt as Unix seconds for the store's native expiry.
type OnboardingSession struct {
	SessionID       string    `json:"id" dynamodbav:"session_id"`
	Email           string    `json:"email" dynamodbav:"email"`
	StepData        string    `json:"-" dynamodbav:"step_data"`
	CurrentStep     string    `json:"current_step" dynamodbav:"current_step"`
	CompletedSteps  []Step    `json:"completed_steps" dynamodbav:"completed_steps"`
	ExpiresAt       time.Time `json:"expires_at" dynamodbav:"expires_at"`
	TTL             int64     `json:"-" dynamodbav:"ttl"`
	Encrypted       bool      `json:"encrypted" dynamodbav:"encrypted"`
	InvitationBased bool      `json:"invitation_based" dynamodbav:"invitation_based"`
	InvitationID    *string   `json:"invitation_id" dynamodbav:"invitation_id,omitempty"`
	CreatedAt       time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// SessionPayload is the document sealed into OnboardingSession.StepData.
// Its ExpiresAt is authoritative; a zero value means the payload could not be
// read and the record-level expiry applies instead.
type SessionPayload struct {
	SchemaVersion int       `json:"schema_version"`
	SessionID     string    `json:"session_id,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Encrypted     bool      `json:"encrypted"`
	Form          FormData  `json:"form"`
}

// EffectiveExpiry returns the payload expiry, falling back to the record's.
func (p SessionPayload) EffectiveExpiry(s *OnboardingSession) time.Time {
	if !p.ExpiresAt.IsZero() {
		return p.ExpiresAt
	}
	return s.ExpiresAt
}

// SessionData is the materialized view returned by the session API.
type SessionData struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	StepData        FormData  `json:"step_data"`
	CurrentStep     Step      `json:"current_step"`
	CompletedSteps  []Step    `json:"completed_steps"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Encrypted       bool      `json:"encrypted"`
	InvitationBased bool      `json:"invitation_based"`
	InvitationID    *string   `json:"invitation_id"`
}

// SessionLookup identifies sessions by id or by owning email.
// SessionID wins when both are set.
type SessionLookup struct {
	SessionID string
	Email     string
}

func (l SessionLookup) Empty() bool { return l.SessionID == "" && l.Email == "" }

// CreateSessionRequest is the POST body of the session API.
type CreateSessionRequest struct {
	Email                string  `json:"email" validate:"required,email"`
	InvitationToken      *string `json:"invitationToken"`
	TTLMinutes           *int    `json:"ttlMinutes"` // zero or less means the default
	EncryptSensitiveData *bool   `json:"encryptSensitiveData"`
}

// UpdateSessionRequest is the PUT body of the session API. On the wire a
// stepData key set to null lands in ClearedFields.
type UpdateSessionRequest struct {
	SessionID      string    `json:"sessionId"`
	Email          string    `json:"email"`
	CurrentStep    *Step     `json:"currentStep"`
	StepData       *FormData `json:"stepData"`
	ClearedFields  []string  `json:"-"`
	CompletedSteps []Step    `json:"completedSteps"`
	ExtendTTL      *bool     `json:"extendTTL"`
	TTLMinutes     *int      `json:"ttlMinutes"`
}

type updateSessionWire struct {
	updateSessionFields
	StepData json.RawMessage `json:"stepData,omitempty"`
}

type updateSessionFields UpdateSessionRequest

// UnmarshalJSON decodes strictly: unknown keys, top-level or in stepData,
// are errors.
func (r *UpdateSessionRequest) UnmarshalJSON(b []byte) error {
	var w updateSessionWire
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return err
	}
	*r = UpdateSessionRequest(w.updateSessionFields)
	r.StepData, r.ClearedFields = nil, nil
	if len(w.StepData) == 0 || bytes.Equal(bytes.TrimSpace(w.StepData), []byte("null")) {
		return nil
	}
	form, cleared, err := DecodeFormPatch(w.StepData)
	if err != nil {
		return err
	}
	r.StepData, r.ClearedFields = &form, cleared
	return nil
}

func (r UpdateSessionRequest) MarshalJSON() ([]byte, error) {
	w := updateSessionWire{updateSessionFields: updateSessionFields(r)}
	if r.StepData != nil || len(r.ClearedFields) > 0 {
		raw, err := EncodeFormPatch(r.StepData, r.ClearedFields)
		if err != nil {
			return nil, err
		}
		w.StepData = raw
	}
	return json.Marshal(w)
}

func (r UpdateSessionRequest) Lookup() SessionLookup {
	return SessionLookup{SessionID: r.SessionID, Email: r.Email}
}
