package book

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	isbn10Pattern = regexp.MustCompile(`^\d{9}[\dX]$`)
	isbn13Pattern = regexp.MustCompile(`^\d{13}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "isbn", validateISBN)
	mustRegister(v, "notblank", validateNotBlank)
	mustRegister(v, "past_date", validatePastDate)
	mustRegister(v, "book_status", validateStatus)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// validateISBN checks the shape of an ISBN-10 or ISBN-13; hyphens and spaces
// are ignored.
func validateISBN(fl validator.FieldLevel) bool {
	isbn := NormalizeISBN(fl.Field().String())
	switch len(isbn) {
	case 10:
		return isbn10Pattern.MatchString(isbn)
	case 13:
		return isbn13Pattern.MatchString(isbn)
	}
	return false
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validatePastDate requires a YYYY-MM-DD date strictly before today (UTC).
func validatePastDate(fl validator.FieldLevel) bool {
	d, err := ParseDate(fl.Field().String())
	if err != nil {
		return false
	}
	return d.Before(DateOf(time.Now().UTC()).Time)
}

func validateStatus(fl validator.FieldLevel) bool {
	_, err := ParseStatus(fl.Field().String())
	return err == nil
}

// FieldError describes one invalid field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError carries every invalid field of a request. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "invalid book: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate checks a create request and returns a *ValidationError, or nil.
func (r CreateRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate book: %w", err)
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		field := fe.Field()

		var message string
		switch fe.Tag() {
		case "required", "notblank":
			message = fmt.Sprintf("%s is required", field)
		case "isbn":
			message = fmt.Sprintf("%s must be a valid ISBN (10 or 13 digits)", field)
		case "past_date":
			message = fmt.Sprintf("%s must be a past date formatted YYYY-MM-DD", field)
		case "book_status":
			message = fmt.Sprintf("%s must be one of %s", field, joinStatuses())
		default:
			message = fmt.Sprintf("%s is invalid", field)
		}

		out.Fields = append(out.Fields, FieldError{Field: field, Message: message})
	}
	return out
}

func joinStatuses() string {
	names := make([]string, len(Statuses))
	for i, s := range Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
