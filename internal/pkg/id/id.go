package id

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time and safe for use as DynamoDB partition keys.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewSessionID returns an onboarding session id of the form
// session_<unix-millis>_<random>, where random is the entropy half of a ULID.
func NewSessionID(now time.Time) string {
	u := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), strings.ToLower(u[10:]))
}
