package domain

import "time"

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
)

// Invitation is an offer to a coach to start onboarding. The signed token
// handed to the coach is derived from it and never stored.
type Invitation struct {
	InvitationID string     `json:"id" dynamodbav:"invitation_id"`
	Email        string     `json:"email" dynamodbav:"email"`
	FirstName    string     `json:"firstName" dynamodbav:"first_name"`
	LastName     string     `json:"lastName" dynamodbav:"last_name"`
	Phone        *string    `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	City         *string    `json:"city,omitempty" dynamodbav:"city,omitempty"`
	State        *string    `json:"state,omitempty" dynamodbav:"state,omitempty"`
	Status       string     `json:"status" dynamodbav:"status"`
	ExpiresAt    time.Time  `json:"expiresAt" dynamodbav:"expires_at"`
	AcceptedAt   *time.Time `json:"acceptedAt,omitempty" dynamodbav:"accepted_at,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
}

// Usable reports whether the invitation can still start or resume onboarding.
func (i *Invitation) Usable(now time.Time) bool {
	return i.Status != InvitationRevoked && now.Before(i.ExpiresAt)
}

// CreateInvitationRequest is the admin request to invite a coach.
type CreateInvitationRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	FirstName string  `json:"firstName" validate:"required"`
	LastName  string  `json:"lastName" validate:"required"`
	Phone     *string `json:"phone"`
	City      *string `json:"city"`
	State     *string `json:"state"`
}

// InvitationValidation is the response of the invitation validation endpoint.
type InvitationValidation struct {
	Valid      bool        `json:"valid"`
	Invitation *Invitation `json:"invitation,omitempty"`
	Error      string      `json:"error,omitempty"`
	Status     string      `json:"status,omitempty"`
}
