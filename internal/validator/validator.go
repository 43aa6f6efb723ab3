package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidPassword = errors.New("password must be at least 8 characters with an uppercase letter, a lowercase letter and a digit")
)

var (
	validate = newValidate()

	lowerRegex = regexp.MustCompile(`[a-z]`)
	upperRegex = regexp.MustCompile(`[A-Z]`)
	digitRegex = regexp.MustCompile(`[0-9]`)
)

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return strongPassword(fl.Field().String())
	})
	return v
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type Errors []FieldError

func (e Errors) Error() string {
	messages := make([]string, 0, len(e))
	for _, field := range e {
		messages = append(messages, field.Message)
	}
	return strings.Join(messages, "; ")
}

// Struct checks the validate tags of value and reports every failing field.
func Struct(value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err
	}
	fields := make(Errors, 0, len(invalid))
	for _, fe := range invalid {
		fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Message: message(fe)})
	}
	return fields
}

func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

func ValidatePassword(password string) error {
	if !strongPassword(password) {
		return ErrInvalidPassword
	}
	return nil
}

func strongPassword(password string) bool {
	return len(password) >= 8 &&
		lowerRegex.MatchString(password) &&
		upperRegex.MatchString(password) &&
		digitRegex.MatchString(password)
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "strongpassword":
		return ErrInvalidPassword.Error()
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return field + " must be a valid URL"
	case "datetime":
		return field + " must be a date formatted YYYY-MM-DD"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
