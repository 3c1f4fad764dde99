package inquiries

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ContactSubmission is the contact form payload.
type ContactSubmission struct {
	Salutation string `form:"salutation" json:"salutation" validate:"required,oneof=herr frau divers"`
	Company    string `form:"company" json:"company" validate:"max=200"`
	FirstName  string `form:"firstName" json:"firstName" validate:"required,max=100"`
	LastName   string `form:"lastName" json:"lastName" validate:"required,max=100"`
	Email      string `form:"email" json:"email" validate:"required,email,max=254"`
	Phone      string `form:"phone" json:"phone" validate:"required,max=50"`
	Message    string `form:"message" json:"message" validate:"max=5000"`
	Privacy    bool   `form:"privacy" json:"privacy" validate:"required"`
}

// OrderSubmission is the multi-step order form payload.
type OrderSubmission struct {
	Salutation     string `form:"salutation" json:"salutation" validate:"required,oneof=herr frau divers"`
	Company        string `form:"company" json:"company" validate:"max=200"`
	FirstName      string `form:"firstName" json:"firstName" validate:"required,max=100"`
	LastName       string `form:"lastName" json:"lastName" validate:"required,max=100"`
	Email          string `form:"email" json:"email" validate:"required,email,max=254"`
	Phone          string `form:"phone" json:"phone" validate:"required,max=50"`
	Street         string `form:"street" json:"street" validate:"required,max=200"`
	PostalCode     string `form:"postalCode" json:"postalCode" validate:"required,len=5,numeric"`
	City           string `form:"city" json:"city" validate:"required,max=100"`
	Product        string `form:"product" json:"product" validate:"required,product"`
	Quantity       int    `form:"quantity" json:"quantity" validate:"required,min=500"`
	DeliveryPoints int    `form:"deliveryPoints" json:"deliveryPoints" validate:"required,min=1,max=10"`
	DeliveryTime   string `form:"deliveryTime" json:"deliveryTime" validate:"required,oneof=asap two_weeks four_weeks flexible"`
	Message        string `form:"message" json:"message" validate:"max=5000"`
	Privacy        bool   `form:"privacy" json:"privacy" validate:"required"`
}

// ValidationError reports per-field German messages keyed by the JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var (
	validatorOnce     sync.Once
	validatorInstance *validator.Validate
)

func formValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
		_ = v.RegisterValidation("product", func(fl validator.FieldLevel) bool {
			return IsProduct(fl.Field().String())
		})
		validatorInstance = v
	})
	return validatorInstance
}

// Normalize trims every free-text field.
func (s *ContactSubmission) Normalize() {
	s.Salutation = strings.ToLower(strings.TrimSpace(s.Salutation))
	s.Company = strings.TrimSpace(s.Company)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Email = strings.TrimSpace(s.Email)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Message = strings.TrimSpace(s.Message)
}

// Validate checks the normalized submission.
func (s ContactSubmission) Validate() error {
	return translate(formValidator().Struct(s))
}

// Normalize trims every free-text field.
func (s *OrderSubmission) Normalize() {
	s.Salutation = strings.ToLower(strings.TrimSpace(s.Salutation))
	s.Company = strings.TrimSpace(s.Company)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Email = strings.TrimSpace(s.Email)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Street = strings.TrimSpace(s.Street)
	s.PostalCode = strings.TrimSpace(s.PostalCode)
	s.City = strings.TrimSpace(s.City)
	s.Product = strings.TrimSpace(s.Product)
	s.DeliveryTime = strings.TrimSpace(s.DeliveryTime)
	s.Message = strings.TrimSpace(s.Message)
}

// Validate checks the normalized submission.
func (s OrderSubmission) Validate() error {
	return translate(formValidator().Struct(s))
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	fields := make(map[string]string, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		name := fieldError.Field()
		if _, exists := fields[name]; exists {
			continue
		}
		fields[name] = message(name, fieldError.Tag())
	}
	return &ValidationError{Fields: fields}
}

func message(field, tag string) string {
	switch field {
	case "privacy":
		return "Bitte stimmen Sie der Datenschutzerklärung zu."
	case "email":
		if tag == "required" {
			return "Bitte geben Sie Ihre E-Mail-Adresse ein."
		}
		return "Bitte geben Sie eine gültige E-Mail-Adresse ein."
	case "postalCode":
		return "Bitte geben Sie eine fünfstellige Postleitzahl ein."
	case "quantity":
		return "Die Mindestbestellmenge beträgt 500 Liter."
	case "deliveryPoints":
		return "Bitte wählen Sie zwischen 1 und 10 Abladestellen."
	case "product":
		return "Bitte wählen Sie ein Produkt aus."
	}
	switch tag {
	case "required":
		return "Dieses Feld ist erforderlich."
	case "oneof":
		return "Bitte wählen Sie eine gültige Option."
	case "max":
		return "Die Eingabe ist zu lang."
	default:
		return "Die Eingabe ist ungültig."
	}
}
