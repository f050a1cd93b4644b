package framework

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// strikeExpr matches relative strikes such as SPOT, FWD+5% or SPOT-10%
var strikeExpr = regexp.MustCompile(`^(SPOT|FWD)([+-]\d{1,2}%)?$`)

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterValidation("currency", isCurrency)
	v.RegisterValidation("strike", isStrike)

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// InputError lists every invalid builder field
type InputError struct {
	Builder string
	Fields  []string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s input: %s", e.Builder, strings.Join(e.Fields, "; "))
}

// validateInput runs struct validation before any network call
func validateInput(builder string, in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &InputError{Builder: builder}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, formatFieldError(fe))
	}
	return out
}

func formatFieldError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must be a date like %s", field, param)
	case "currency":
		return fmt.Sprintf("%s must be a 3-letter currency code", field)
	case "strike":
		return fmt.Sprintf("%s must be a number or one of SPOT, FWD, SPOT+10%%, FWD-5%%", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, param)
	case "eqfield":
		return fmt.Sprintf("%s must match %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isCurrency validates ISO-style currency codes (USD, EUR)
func isCurrency(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if len(code) != 3 {
		return false
	}
	for _, ch := range code {
		if ch < 'A' || ch > 'Z' {
			return false
		}
	}
	return true
}

// isStrike validates a relative strike expression; numeric strikes use Strike.Value
func isStrike(fl validator.FieldLevel) bool {
	expr := fl.Field().String()
	return expr == "" || strikeExpr.MatchString(expr)
}
