package ledger

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	// decimals are compared as floats for tag checks only; arithmetic never leaves decimal
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Validate checks cmd's struct tags and converts failures into ValidationErrors.
// Validated decimal fields must also fit in whole cents.
func Validate(cmd any) error {
	var out ValidationErrors
	if err := validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Field: "request", Reason: err.Error()}
		}
		for _, fe := range verrs {
			out = append(out, &ValidationError{Field: fe.Field(), Reason: reason(fe)})
		}
	}
	out = append(out, subCent(cmd)...)
	if len(out) == 0 {
		return nil
	}
	return out
}

// subCent reports tagged decimal fields carrying more than two fractional digits.
// They would otherwise be rounded away after the tag checks passed.
func subCent(cmd any) ValidationErrors {
	v := reflect.Indirect(reflect.ValueOf(cmd))
	if v.Kind() != reflect.Struct {
		return nil
	}
	var out ValidationErrors
	for i := 0; i < v.NumField(); i++ {
		f := v.Type().Field(i)
		if !f.IsExported() || f.Tag.Get("validate") == "" {
			continue
		}
		fv := reflect.Indirect(v.Field(i))
		if !fv.IsValid() || fv.Type() != decimalType {
			continue
		}
		if d := fv.Interface().(decimal.Decimal); !d.Equal(d.Round(2)) {
			out = append(out, &ValidationError{Field: fieldName(f), Reason: "must have at most 2 decimal places"})
		}
	}
	return out
}

func fieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
