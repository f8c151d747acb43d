package student

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxPhotoBytes is the largest accepted photo payload (500 KiB).
const MaxPhotoBytes = 500 * 1024

const (
	MinAge = 16
	MaxAge = 100

	dobLayout = "2006-01-02"

	emailTag = "student_email"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// requiredFields is checked in order; only the first gap is reported.
var requiredFields = []struct {
	label string
	value func(*Master) string
}{
	{"Name", func(m *Master) string { return m.Name }},
	{"Date of Birth", func(m *Master) string { return m.DOB }},
	{"Father's Name", func(m *Master) string { return m.FatherName }},
	{"Contact Number", func(m *Master) string { return m.ContactNo }},
	{"Email", func(m *Master) string { return m.Email }},
	{"Address", func(m *Master) string { return m.Address }},
	{"Gender", func(m *Master) string { return m.Gender }},
	{"Course", func(m *Master) string { return m.Course }},
	{"Year", func(m *Master) string { return m.Year }},
}

// Validator runs the master record checks. The clock is injectable so age
// checks are reproducible.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := validator.New()
	if err := v.RegisterValidation(emailTag, func(fl validator.FieldLevel) bool {
		return emailRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("student: register %s validation: %v", emailTag, err))
	}
	return &Validator{validate: v, now: now}
}

// Validate applies required fields, email, age, contact and photo size, in that order.
func (v *Validator) Validate(m *Master, photo []byte) error {
	if err := v.ValidateRequired(m); err != nil {
		return err
	}
	if err := v.ValidateEmail(m.Email); err != nil {
		return err
	}
	if err := ValidateAge(m.DOB, v.now()); err != nil {
		return err
	}
	if err := v.ValidateContact(m.ContactNo); err != nil {
		return err
	}
	return ValidatePhotoSize(photo)
}

// ValidateRequired fails on the first required field that is empty or blank.
func (v *Validator) ValidateRequired(m *Master) error {
	for _, f := range requiredFields {
		if v.validate.Var(strings.TrimSpace(f.value(m)), "required") != nil {
			return &FieldError{Label: f.label}
		}
	}
	return nil
}

func (v *Validator) ValidateEmail(value string) error {
	if v.validate.Var(value, emailTag) != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateContact accepts exactly ten decimal digits.
func (v *Validator) ValidateContact(value string) error {
	if v.validate.Var(value, "len=10,number") != nil {
		return ErrInvalidContact
	}
	return nil
}

// ValidateAge fails unless dob (YYYY-MM-DD) puts the student between MinAge and MaxAge on now.
func ValidateAge(dob string, now time.Time) error {
	born, err := time.Parse(dobLayout, strings.TrimSpace(dob))
	if err != nil {
		return ErrAgeOutOfRange
	}
	if age := Age(born, now); age < MinAge || age > MaxAge {
		return ErrAgeOutOfRange
	}
	return nil
}

// Age is the number of whole years between born and now. A birthday not yet
// reached this calendar year does not count.
func Age(born, now time.Time) int {
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age
}

func ValidatePhotoSize(photo []byte) error {
	if len(photo) > MaxPhotoBytes {
		return ErrPhotoTooLarge
	}
	return nil
}
