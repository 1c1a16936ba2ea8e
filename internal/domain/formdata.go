package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// FormSchemaVersion is bumped whenever FormData changes shape incompatibly.
const FormSchemaVersion = 1

// PersonalInfo holds fields collected on the personal-info step.
type PersonalInfo struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string `json:"phone,omitempty"`
	BirthDate *string `json:"birthDate,omitempty" validate:"omitempty,adult"` // YYYY-MM-DD
	Gender    *string `json:"gender,omitempty"`
	Address   *string `json:"address,omitempty"`
	City      *string `json:"city,omitempty"`
	State     *string `json:"state,omitempty"`
	Zip       *string `json:"zip,omitempty"`
}

// RoleExperience holds fields collected on the role-experience step.
type RoleExperience struct {
	Role                 *string  `json:"role,omitempty"`
	Sport                *string  `json:"sport,omitempty"`
	YearsExperience      *int     `json:"yearsExperience,omitempty" validate:"omitempty,min=0,max=80"`
	Certifications       []string `json:"certifications,omitempty"`
	HasCoachingLicense   *bool    `json:"hasCoachingLicense,omitempty"`
	PreviousOrganization *string  `json:"previousOrganization,omitempty"`
	Bio                  *string  `json:"bio,omitempty"`
}

// SchoolSetup holds fields collected on the school-setup step.
type SchoolSetup struct {
	NameOfInstitution *string  `json:"nameOfInstitution,omitempty"`
	SchoolType        *string  `json:"schoolType,omitempty"`
	Website           *string  `json:"website,omitempty" validate:"omitempty,url"`
	SchoolStreet      *string  `json:"schoolStreet,omitempty"`
	SchoolCity        *string  `json:"schoolCity,omitempty"`
	SchoolState       *string  `json:"schoolState,omitempty"`
	SchoolZip         *string  `json:"schoolZip,omitempty"`
	SchoolPhone       *string  `json:"schoolPhone,omitempty"`
	GradeLevelsServed []string `json:"gradeLevelsServed,omitempty"`
	AcademicYearStart *string  `json:"academicYearStart,omitempty"`
	AcademicYearEnd   *string  `json:"academicYearEnd,omitempty"`
}

// SchoolFocus holds fields collected on the school-focus step.
type SchoolFocus struct {
	SportFocuses       []string `json:"sportFocuses,omitempty"`
	ProgramFocus       *string  `json:"programFocus,omitempty"`
	TrainingPhilosophy *string  `json:"trainingPhilosophy,omitempty"`
	FacilityAccess     *string  `json:"facilityAccess,omitempty"`
	CompetitionLevel   *string  `json:"competitionLevel,omitempty"`
}

// StudentPlanning holds fields collected on the student-planning step.
type StudentPlanning struct {
	EstimatedStudentCount *int     `json:"estimatedStudentCount,omitempty" validate:"omitempty,min=0"`
	StudentGradeLevels    []string `json:"studentGradeLevels,omitempty"`
	EnrollmentCapacity    *int     `json:"enrollmentCapacity,omitempty" validate:"omitempty,min=0"`
	HasCurrentStudents    *bool    `json:"hasCurrentStudents,omitempty"`
	CurrentStudentDetails *string  `json:"currentStudentDetails,omitempty"`
	TuitionModel          *string  `json:"tuitionModel,omitempty"`
}

// Agreements holds the consent flags collected on the agreements step.
type Agreements struct {
	PlatformAgreement      *bool `json:"platformAgreement,omitempty"`
	BackgroundCheckConsent *bool `json:"backgroundCheckConsent,omitempty"`
	TermsAccepted          *bool `json:"termsAccepted,omitempty"`
	PrivacyPolicyAccepted  *bool `json:"privacyPolicyAccepted,omitempty"`
	CodeOfConduct          *bool `json:"codeOfConduct,omitempty"`
}

// FormData is the union of every wizard step's fields. Steps do not own
// disjoint slices of it: every step reads and writes the same record.
// A nil field means "not supplied".
type FormData struct {
	PersonalInfo
	RoleExperience
	SchoolSetup
	SchoolFocus
	StudentPlanning
	Agreements
}

// Merge overlays every non-nil field of other onto f. The merge is shallow:
// slices are replaced wholesale, never element-merged.
func (f *FormData) Merge(other FormData) {
	dst := reflect.ValueOf(f).Elem()
	src := reflect.ValueOf(other)
	for i := 0; i < dst.NumField(); i++ {
		dg, sg := dst.Field(i), src.Field(i)
		for j := 0; j < dg.NumField(); j++ {
			if sf := sg.Field(j); !sf.IsNil() {
				dg.Field(j).Set(sf)
			}
		}
	}
}

// Set assigns value to the field whose JSON name is name. The value is
// converted through JSON so callers may pass strings, numbers, bools or
// string slices. A nil value clears the field.
func (f *FormData) Set(name string, value interface{}) error {
	fv, ok := f.field(name)
	if !ok {
		return fmt.Errorf("unknown field %q: %w", name, ErrBadRequest)
	}
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode field %s: %w", name, err)
	}
	ptr := reflect.New(fv.Type())
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return fmt.Errorf("field %s: %v: %w", name, err, ErrBadRequest)
	}
	fv.Set(ptr.Elem())
	return nil
}

// Clear unsets the named fields. Unknown names are ignored.
func (f *FormData) Clear(names ...string) {
	for _, name := range names {
		if fv, ok := f.field(name); ok {
			fv.Set(reflect.Zero(fv.Type()))
		}
	}
}

// DecodeFormPatch parses a partial form update. Keys holding JSON null are
// returned as cleared field names; unknown keys are rejected.
func DecodeFormPatch(raw []byte) (FormData, []string, error) {
	var form FormData
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return form, nil, fmt.Errorf("stepData: %v: %w", err, ErrBadRequest)
	}
	known := make(map[string]bool)
	for _, name := range FieldNames() {
		known[name] = true
	}
	var cleared []string
	for name, v := range fields {
		if !known[name] {
			return form, nil, fmt.Errorf("unknown stepData field %q: %w", name, ErrBadRequest)
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			cleared = append(cleared, name)
			delete(fields, name)
		}
	}
	rest, err := json.Marshal(fields)
	if err != nil {
		return form, nil, fmt.Errorf("stepData: %w", err)
	}
	if err := json.Unmarshal(rest, &form); err != nil {
		return form, nil, fmt.Errorf("stepData: %v: %w", err, ErrBadRequest)
	}
	sort.Strings(cleared)
	return form, cleared, nil
}

// EncodeFormPatch is the inverse of DecodeFormPatch: set fields of form plus
// a JSON null for every cleared name form does not set.
func EncodeFormPatch(form *FormData, cleared []string) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if form != nil {
		raw, err := json.Marshal(form)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	for _, name := range cleared {
		if _, set := fields[name]; !set {
			fields[name] = json.RawMessage("null")
		}
	}
	return json.Marshal(fields)
}

// Get returns the dereferenced value of the named field and whether it is set.
func (f *FormData) Get(name string) (interface{}, bool) {
	fv, ok := f.field(name)
	if !ok || fv.IsNil() {
		return nil, false
	}
	if fv.Kind() == reflect.Ptr {
		return fv.Elem().Interface(), true
	}
	return fv.Interface(), true
}

// IsBlank reports whether the named field is unset or holds an empty value.
func (f *FormData) IsBlank(name string) bool {
	v, ok := f.Get(name)
	if !ok {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case bool:
		return !t
	}
	return false
}

// FieldNames lists every JSON field name FormData accepts.
func FieldNames() []string {
	var names []string
	t := reflect.TypeOf(FormData{})
	for i := 0; i < t.NumField(); i++ {
		g := t.Field(i).Type
		for j := 0; j < g.NumField(); j++ {
			names = append(names, jsonName(g.Field(j)))
		}
	}
	return names
}

func (f *FormData) field(name string) (reflect.Value, bool) {
	v := reflect.ValueOf(f).Elem()
	for i := 0; i < v.NumField(); i++ {
		g := v.Field(i)
		for j := 0; j < g.NumField(); j++ {
			if jsonName(g.Type().Field(j)) == name {
				return g.Field(j), true
			}
		}
	}
	return reflect.Value{}, false
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return sf.Name
	}
	return tag
}
