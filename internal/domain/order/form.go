package order

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// Form is the buyer data submitted with an order.
type Form struct {
	FirstName  string `json:"first_name" form:"first_name" validate:"required,max=50"`
	LastName   string `json:"last_name" form:"last_name" validate:"required,max=50"`
	Email      string `json:"email" form:"email" validate:"required,email,max=254"`
	Address    string `json:"address" form:"address" validate:"required,max=250"`
	PostalCode string `json:"postal_code" form:"postal_code" validate:"required,max=20"`
	City       string `json:"city" form:"city" validate:"required,max=100"`
}

// Normalize trims surrounding whitespace from all fields.
func (f *Form) Normalize() {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.TrimSpace(f.Email)
	f.Address = strings.TrimSpace(f.Address)
	f.PostalCode = strings.TrimSpace(f.PostalCode)
	f.City = strings.TrimSpace(f.City)
}

// FieldError describes one invalid form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when the order form is invalid.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("invalid order form: %s", strings.Join(names, ", "))
}

// FormValidator checks order forms against their struct tags.
type FormValidator struct {
	v *validator.Validate
}

// NewFormValidator creates a FormValidator reporting json field names.
func NewFormValidator() *FormValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &FormValidator{v: v}
}

// Validate returns a *ValidationError describing every invalid field, or nil.
func (fv *FormValidator) Validate(f Form) error {
	err := fv.v.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate form")
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	default:
		return fmt.Sprintf("Failed on %q.", fe.Tag())
	}
}
