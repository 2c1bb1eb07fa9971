package wizard

import "strings"

// Step is a position in the four-step form.
type Step int

const (
	StepSchool Step = iota + 1
	StepClass
	StepSection
	StepStudent
)

// Field names accepted by Edit.
const (
	FieldSchoolName = "schoolName"
	FieldClassName  = "className"
	FieldSection    = "section"
	FieldName       = "name"
	FieldRollNumber = "rollNumber"
	FieldDepartment = "department"
	FieldYear       = "year"
)

var stepFields = map[Step][]string{
	StepSchool:  {FieldSchoolName},
	StepClass:   {FieldClassName},
	StepSection: {FieldSection},
	StepStudent: {FieldName, FieldRollNumber, FieldDepartment, FieldYear},
}

// Fields returns the field names edited on step s.
func (s Step) Fields() []string {
	return append([]string(nil), stepFields[s]...)
}

func (s Step) String() string {
	switch s {
	case StepSchool:
		return "school"
	case StepClass:
		return "class"
	case StepSection:
		return "section"
	case StepStudent:
		return "student"
	}
	return "unknown"
}

// Student holds the per-student fields collected on the last step.
type Student struct {
	Name       string
	RollNumber string
	Department string
	Year       string
	Image      *Image
}

// Image is an attachment waiting to be uploaded on submit.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// State is the in-progress submission.
type State struct {
	Step       Step
	SchoolName string
	ClassName  string
	Section    string
	Student    Student
}

// Initial is the state of a fresh wizard.
func Initial() State {
	return State{Step: StepSchool}
}

// Value returns the current value of a named field.
func (s State) Value(field string) (string, bool) {
	switch field {
	case FieldSchoolName:
		return s.SchoolName, true
	case FieldClassName:
		return s.ClassName, true
	case FieldSection:
		return s.Section, true
	case FieldName:
		return s.Student.Name, true
	case FieldRollNumber:
		return s.Student.RollNumber, true
	case FieldDepartment:
		return s.Student.Department, true
	case FieldYear:
		return s.Student.Year, true
	}
	return "", false
}

func (s *State) set(field, value string) {
	switch field {
	case FieldSchoolName:
		s.SchoolName = value
	case FieldClassName:
		s.ClassName = value
	case FieldSection:
		s.Section = value
	case FieldName:
		s.Student.Name = value
	case FieldRollNumber:
		s.Student.RollNumber = value
	case FieldDepartment:
		s.Student.Department = value
	case FieldYear:
		s.Student.Year = value
	}
}

// Complete reports whether every field required by step is filled.
// Whitespace-only values count as empty.
func (s State) Complete(step Step) bool {
	fields, ok := stepFields[step]
	if !ok {
		return false
	}
	for _, f := range fields {
		v, _ := s.Value(f)
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func stepOf(field string) (Step, bool) {
	for step, fields := range stepFields {
		for _, f := range fields {
			if f == field {
				return step, true
			}
		}
	}
	return 0, false
}
