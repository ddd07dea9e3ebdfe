package gateway

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/olyamironova/trade-gateway/internal/domain"
)

// ValidationError is returned for requests that fail input checks.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// NewValidator returns a validator that understands pair tags and decimal
// fields. Field names in messages follow the json tags.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = RegisterValidations(v)
	return v
}

// RegisterValidations adds the gateway rules to v. The HTTP binding shares
// them through gin's validator engine.
func RegisterValidations(v *validator.Validate) error {
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v.RegisterValidation("pair", func(fl validator.FieldLevel) bool {
		return domain.Pair(fl.Field().String()).Valid()
	})
}

func validateCommand(v *validator.Validate, cmd Command) error {
	err := v.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{msg: err.Error()}
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fieldMessage(fe))
	}
	return &ValidationError{msg: cmd.commandName() + ": " + strings.Join(parts, "; ")}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_unless":
		return fe.Field() + " is required"
	case "pair":
		names := make([]string, len(domain.SupportedPairs))
		for i, p := range domain.SupportedPairs {
			names[i] = string(p)
		}
		return fe.Field() + " should be one of these values: " + strings.Join(names, ",")
	case "oneof":
		return fe.Field() + " should be one of these values: " + strings.ReplaceAll(fe.Param(), " ", ",")
	case "gt":
		return fe.Field() + " must be positive"
	case "gte":
		return fe.Field() + " must not be negative"
	default:
		return fe.Field() + " failed " + fe.Tag()
	}
}
