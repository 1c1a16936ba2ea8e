package onboardingclient

import (
	"github.com/coach-onboarding/internal/domain"
	"github.com/coach-onboarding/internal/pkg/validate"
)

// RequiredFields lists the fields each step must fill before it can be
// marked complete.
var RequiredFields = map[domain.Step][]string{
	domain.StepPersonalInfo:    {"firstName", "lastName", "email", "phone", "birthDate"},
	domain.StepRoleExperience:  {"role", "sport", "yearsExperience"},
	domain.StepSchoolSetup:     {"nameOfInstitution", "schoolType", "schoolCity", "schoolState"},
	domain.StepSchoolFocus:     {"sportFocuses", "programFocus"},
	domain.StepStudentPlanning: {"estimatedStudentCount", "studentGradeLevels"},
	domain.StepAgreements:      {"platformAgreement", "backgroundCheckConsent", "termsAccepted", "privacyPolicyAccepted"},
	domain.StepFinalize:        {},
}

const (
	msgRequired = "This field is required"
	msgAdult    = "You must be at least 18 years old"
	msgEmail    = "Please enter a valid email address"
	msgInvalid  = "Invalid value"
)

// validateStep returns field-keyed messages for step. Format rules (email,
// minimum age, numeric bounds) apply to every filled field, required
// fields only to the step's own list.
func validateStep(step domain.Step, form domain.FormData) map[string]string {
	errs := map[string]string{}
	for _, name := range RequiredFields[step] {
		if form.IsBlank(name) {
			errs[name] = msgRequired
		}
	}
	for name, tag := range validate.Fields(form) {
		if _, taken := errs[name]; taken || name == "" {
			continue
		}
		switch tag {
		case "adult":
			errs[name] = msgAdult
		case "email":
			errs[name] = msgEmail
		default:
			errs[name] = msgInvalid
		}
	}
	return errs
}
