// Package validation checks inbound payloads against their declared schema and
// reports every violated rule as a common.ValidationError.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/go-playground/validator/v10"
)

// Validator wraps a validator instance. Field names in violations come from the
// json tag of the struct field, optionally renamed through aliases.
type Validator struct {
	v       *validator.Validate
	aliases map[string]string
}

// New returns a Validator. aliases maps a json field name to the name callers
// know it by, for fields whose wire name is configurable.
func New(aliases map[string]string) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v, aliases: aliases}
}

// Struct validates s and returns nil or a *common.ValidationError.
func (v *Validator) Struct(s any) error {
	return v.convert("", v.v.Struct(s))
}

// Var validates a single value against tag, reporting violations under field.
func (v *Validator) Var(field string, value any, tag string) error {
	return v.convert(field, v.v.Var(value, tag))
}

// Merge joins several validation results into one error, keeping every
// violation. Non-validation errors are returned as is.
func Merge(errs ...error) error {
	var out []common.Violation
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ve *common.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		out = append(out, ve.Violations...)
	}
	if len(out) == 0 {
		return nil
	}
	return &common.ValidationError{Violations: out}
}

func (v *Validator) convert(field string, err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make([]common.Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := field
		if name == "" {
			name = fe.Field()
		}
		if alias, ok := v.aliases[name]; ok {
			name = alias
		}
		out = append(out, common.Violation{Field: name, Rule: fe.Tag(), Param: fe.Param()})
	}
	return &common.ValidationError{Violations: out}
}
