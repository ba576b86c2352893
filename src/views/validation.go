package views

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"stockdesk/src/clients/market"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validateForm checks the required fields of a form before anything is sent.
func validateForm(form interface{}) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return market.NewValidationError("", err.Error())
	}

	fe := fieldErrors[0]
	switch fe.Tag() {
	case "required":
		return market.NewValidationError(fe.Field(), fmt.Sprintf("%s is required", fe.Field()))
	case "email":
		return market.NewValidationError(fe.Field(), fmt.Sprintf("%s must be a valid email", fe.Field()))
	case "oneof":
		return market.NewValidationError(fe.Field(), fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param()))
	default:
		return market.NewValidationError(fe.Field(), fmt.Sprintf("%s is invalid", fe.Field()))
	}
}

func requirePositive(field string, value decimal.Decimal) error {
	if !value.IsPositive() {
		return market.NewValidationError(field, fmt.Sprintf("%s must be greater than zero", field))
	}
	return nil
}

func requireNotNegative(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return market.NewValidationError(field, fmt.Sprintf("%s cannot be negative", field))
	}
	return nil
}
