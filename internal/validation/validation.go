// Package validation maps application sections and auth forms to field errors.
// Every function is pure: it only reads its input and collects all errors
// instead of stopping at the first one.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/atinyakov/DigitalPass/internal/models"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

var (
	mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// messages is keyed by "<json field>.<failed tag>".
var messages = map[string]string{
	"fullName.notblank":        "Full name is required",
	"mobile.notblank":          "Mobile number is required",
	"mobile.mobile":            "Invalid mobile number",
	"email.notblank":           "Email is required",
	"email.emailaddr":          "Invalid email format",
	"photo.required":           "Please upload your photo",
	"collegeName.notblank":     "College name is required",
	"branch.notblank":          "Branch/Specialization is required",
	"collegeLocation.notblank": "College location is required",
	"fromAddress.notblank":     "From address is required",
	"toAddress.notblank":       "To address is required",
	"toAddress.sameaddress":    "From and To addresses cannot be the same",
	"duration.required":        "Duration is required",
	"duration.oneof":           "Invalid duration",
	"password.required":        "Password is required",
	"password.min":             fmt.Sprintf("Password must be at least %d characters", MinPasswordLength),
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	must(v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return !blank(fl.Field().String())
	}))
	must(v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("emailaddr", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}))
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		t := sl.Current().Interface().(models.TravelDetails)
		if !blank(t.FromAddress) && !blank(t.ToAddress) && SameAddress(t.FromAddress, t.ToAddress) {
			sl.ReportError(t.ToAddress, "toAddress", "ToAddress", "sameaddress", "")
		}
	}, models.TravelDetails{})
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Errors maps a field name to its error message. An empty Errors means the
// input passed.
type Errors map[string]string

// Error implements error, listing fields in a stable order.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// OK reports whether there are no errors.
func (e Errors) OK() bool { return len(e) == 0 }

func (e Errors) merge(other Errors) {
	for k, v := range other {
		e[k] = v
	}
}

// check runs the struct tags of s and converts every failure to its message.
func check(s any) Errors {
	errs := Errors{}
	err := validate.Struct(s)
	if err == nil {
		return errs
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs["section"] = "Unknown section"
		return errs
	}
	for _, fe := range fieldErrs {
		if _, seen := errs[fe.Field()]; seen {
			continue
		}
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value"
		}
		errs[fe.Field()] = msg
	}
	return errs
}

// Validate checks the fields of one section.
func Validate(section models.Section) Errors {
	switch section.(type) {
	case models.PersonalDetails, models.EducationDetails, models.TravelDetails:
		return check(section)
	}
	return Errors{"section": "Unknown section"}
}

// ValidateSection checks the section id of the draft.
func ValidateSection(id models.SectionID, d models.Draft) Errors {
	switch id {
	case models.SectionPersonal:
		return Validate(d.Personal)
	case models.SectionEducation:
		return Validate(d.Education)
	case models.SectionTravel:
		return Validate(d.Travel)
	}
	return Errors{"section": "Unknown section"}
}

// ValidateDraft checks all three sections together.
func ValidateDraft(d models.Draft) Errors {
	errs := Errors{}
	errs.merge(check(d.Personal))
	errs.merge(check(d.Education))
	errs.merge(check(d.Travel))
	return errs
}

// SameAddress compares two addresses ignoring case and surrounding space.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type loginForm struct {
	Email    string `json:"email" validate:"notblank,emailaddr"`
	Password string `json:"password" validate:"required"`
}

type registrationForm struct {
	FullName string `json:"fullName" validate:"notblank"`
	Email    string `json:"email" validate:"notblank,emailaddr"`
	Mobile   string `json:"mobile" validate:"notblank,mobile"`
	Password string `json:"password" validate:"required,min=6"`
}

// ValidateLogin checks the login form.
func ValidateLogin(email, password string) Errors {
	return check(loginForm{Email: email, Password: password})
}

// ValidateRegistration checks the registration form.
func ValidateRegistration(fullName, email, mobile, password string) Errors {
	return check(registrationForm{FullName: fullName, Email: email, Mobile: mobile, Password: password})
}

func blank(v string) bool {
	return strings.TrimSpace(v) == ""
}
