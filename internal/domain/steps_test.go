package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStep_Code(t *testing.T) {
	assert.Equal(t, "PERSONAL_INFO", StepPersonalInfo.Code())
	assert.Equal(t, "SCHOOL_SETUP", StepSchoolSetup.Code())
	assert.Equal(t, "CUSTOM_STEP", Step("custom-step").Code())
}

func TestStepFromCode_RoundTrip(t *testing.T) {
	for _, s := range Steps {
		assert.Equal(t, s, StepFromCode(s.Code()))
	}
	assert.Equal(t, StepSchoolFocus, StepFromCode("school-focus"))
}

func TestStep_Next(t *testing.T) {
	assert.Equal(t, StepRoleExperience, StepPersonalInfo.Next())
	assert.Equal(t, Step(""), StepFinalize.Next())
	assert.Equal(t, Step(""), Step("unknown").Next())
}

func TestAppendStep_NoDuplicates(t *testing.T) {
	got := AppendStep([]Step{StepPersonalInfo}, StepPersonalInfo)
	assert.Equal(t, []Step{StepPersonalInfo}, got)
	got = AppendStep(got, StepSchoolSetup)
	assert.Equal(t, []Step{StepPersonalInfo, StepSchoolSetup}, got)
}

func TestDedupeSteps_KeepsFirstOrder(t *testing.T) {
	got := DedupeSteps([]Step{StepSchoolSetup, StepPersonalInfo, StepSchoolSetup, ""})
	assert.Equal(t, []Step{StepSchoolSetup, StepPersonalInfo}, got)
}
