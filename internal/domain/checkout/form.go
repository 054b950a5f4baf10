package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
)

// Form is the billing contact and payment method submitted at checkout
type Form struct {
	FullName           string `json:"full_name" validate:"required,min=2,max=100"`
	Email              string `json:"email" validate:"required,email,max=254"`
	Phone              string `json:"phone" validate:"omitempty,e164"`
	Street             string `json:"street" validate:"required,min=3,max=200"`
	City               string `json:"city" validate:"required,max=100"`
	State              string `json:"state" validate:"required,max=100"`
	PostalCode         string `json:"postal_code" validate:"required,min=3,max=10"`
	Country            string `json:"country" validate:"required,iso3166_1_alpha2"`
	PaymentMethodToken string `json:"payment_method_token" validate:"required,startswith=tok_,max=255"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateForm returns a *ValidationError describing every invalid field
func validateForm(v *validator.Validate, form Form) error {
	err := v.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Fields[fe.Field()] = fieldMessage(fe)
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be a phone number in international format, e.g. +15035550100"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "iso3166_1_alpha2":
		return "must be a two-letter country code"
	case "startswith":
		return "is not a valid payment method"
	default:
		return "is invalid"
	}
}

func (f Form) billingAddress() order.Address {
	return order.Address{
		FullName:     f.FullName,
		AddressLine1: f.Street,
		City:         f.City,
		State:        f.State,
		PostalCode:   f.PostalCode,
		Country:      strings.ToUpper(f.Country),
	}
}

func (f Form) billingDetails() payment.BillingDetails {
	return payment.BillingDetails{
		Name:       f.FullName,
		Email:      f.Email,
		Phone:      f.Phone,
		Line1:      f.Street,
		City:       f.City,
		State:      f.State,
		PostalCode: f.PostalCode,
		Country:    strings.ToUpper(f.Country),
	}
}
