package domain

import "strings"

// Step identifies a wizard step in its display (kebab-case) form.
type Step string

const (
	StepPersonalInfo    Step = "personal-info"
	StepRoleExperience  Step = "role-experience"
	StepSchoolSetup     Step = "school-setup"
	StepSchoolFocus     Step = "school-focus"
	StepStudentPlanning Step = "student-planning"
	StepAgreements      Step = "agreements"
	StepFinalize        Step = "finalize"
)

// Steps is the fixed wizard order. Progress is measured against its length.
var Steps = []Step{
	StepPersonalInfo,
	StepRoleExperience,
	StepSchoolSetup,
	StepSchoolFocus,
	StepStudentPlanning,
	StepAgreements,
	StepFinalize,
}

// Code returns the stored upper-snake-case form, e.g. "SCHOOL_SETUP".
func (s Step) Code() string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(string(s)), "-", "_"))
}

// StepFromCode converts a stored code back to its display form.
// Values already in kebab-case pass through unchanged.
func StepFromCode(code string) Step {
	return Step(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "_", "-")))
}

// Known reports whether s is one of Steps.
func (s Step) Known() bool {
	for _, k := range Steps {
		if k == s {
			return true
		}
	}
	return false
}

// Next returns the step after s, or "" when s is last or unknown.
func (s Step) Next() Step {
	for i, k := range Steps {
		if k == s && i+1 < len(Steps) {
			return Steps[i+1]
		}
	}
	return ""
}

// AppendStep appends step to completed unless already present.
func AppendStep(completed []Step, step Step) []Step {
	for _, c := range completed {
		if c == step {
			return completed
		}
	}
	return append(completed, step)
}

// DedupeSteps removes repeated entries, keeping first occurrence order.
func DedupeSteps(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s == "" {
			continue
		}
		out = AppendStep(out, s)
	}
	return out
}
