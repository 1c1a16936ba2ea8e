package validate

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MinimumAge is the youngest a coach may be to onboard.
const MinimumAge = 18

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

func init() {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("adult", func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return IsAdult(s, time.Now())
	})
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	fields := Fields(s)
	if fields == nil {
		return nil
	}
	if err, ok := fields[""]; ok {
		return fmt.Errorf("%s", err)
	}
	var msgs []string
	for name, tag := range fields {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", name, tag))
	}
	sort.Strings(msgs)
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// Fields validates s and returns the failing tag per field, keyed by the
// field's JSON name when it has one. A non-validation failure is reported
// under the empty key.
func Fields(s interface{}) map[string]string {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"": err.Error()}
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// Email reports whether s is a syntactically valid email address.
func Email(s string) bool {
	return v.Var(s, "required,email") == nil
}

// IsAdult reports whether a YYYY-MM-DD birth date is at least MinimumAge
// years before now.
func IsAdult(birthDate string, now time.Time) bool {
	born, err := time.Parse("2006-01-02", strings.TrimSpace(birthDate))
	if err != nil {
		return false
	}
	return !born.AddDate(MinimumAge, 0, 0).After(now)
}
