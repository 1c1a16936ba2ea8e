package http

import (
	"github.com/coach-onboarding/internal/application/invitation"
	"github.com/coach-onboarding/internal/application/session"
)

// Deps holds the application services the router exposes. Invitations may be
// nil, which disables the validate and admin routes.
type Deps struct {
	Sessions    session.Service
	Invitations invitation.Service
}
