// Package validation checks invocation parameters against an action's contract.
package validation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
)

// validate is shared; validator.Validate is safe for concurrent use
var validate = newValidator()

const numberTag = "parses_as_number"

// typeTags maps declared parameter types to validator tags. Strings accept anything.
var typeTags = map[models.ParameterType]string{
	models.ParameterTypeEmail:  "contains=@",
	models.ParameterTypeNumber: numberTag,
}

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation(numberTag, parsesAsNumber); err != nil {
		panic(fmt.Sprintf("register %s: %v", numberTag, err))
	}
	return v
}

// parsesAsNumber accepts anything strconv.ParseFloat reads as a finite value,
// so "1e3", ".5" and "5." pass while "NaN" and "Inf" do not
func parsesAsNumber(fl validator.FieldLevel) bool {
	f, err := strconv.ParseFloat(fl.Field().String(), 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// TypeError describes a parameter whose value does not match its declared type
type TypeError struct {
	Field    string               `json:"field"`
	Expected models.ParameterType `json:"expected"`
	Message  string               `json:"message"`
}

// Result is the outcome of checking one parameter set
type Result struct {
	MissingFields []string
	TypeErrors    []TypeError
}

// OK reports whether the parameters satisfied the contract
func (r Result) OK() bool {
	return len(r.MissingFields) == 0 && len(r.TypeErrors) == 0
}

// Summary renders the result as a single line for audit details
func (r Result) Summary() string {
	var parts []string
	if len(r.MissingFields) > 0 {
		parts = append(parts, "missing: "+strings.Join(r.MissingFields, ", "))
	}
	for _, te := range r.TypeErrors {
		parts = append(parts, te.Message)
	}
	return strings.Join(parts, "; ")
}

// Check inspects params against def and reports every problem found.
// Parameters not declared in the schema are ignored.
func Check(def *models.ActionDefinition, params models.Parameters) Result {
	var res Result

	names := make([]string, 0, len(def.ParameterSchema))
	for name := range def.ParameterSchema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := def.ParameterSchema[name]
		value, present := params.String(name)
		if !present {
			if spec.Required {
				res.MissingFields = append(res.MissingFields, name)
			}
			continue
		}

		tag, typed := typeTags[spec.Type]
		if !typed {
			continue
		}
		if err := validate.Var(value, tag); err != nil {
			res.TypeErrors = append(res.TypeErrors, TypeError{
				Field:    name,
				Expected: spec.Type,
				Message:  typeMessage(name, spec.Type),
			})
		}
	}
	return res
}

// Validate returns nil when params satisfy def, otherwise a validation
// DomainError carrying missingFields and typeErrors details
func Validate(def *models.ActionDefinition, params models.Parameters) error {
	res := Check(def, params)
	if res.OK() {
		return nil
	}
	return NewError(res)
}

// NewError converts a failed result into a validation DomainError
func NewError(res Result) *services.DomainError {
	missing := res.MissingFields
	if missing == nil {
		missing = []string{}
	}
	typeErrs := res.TypeErrors
	if typeErrs == nil {
		typeErrs = []TypeError{}
	}
	return services.NewDomainError(services.ErrorTypeValidation, "invalid parameters: "+res.Summary(), nil).
		WithDetail("missingFields", missing).
		WithDetail("typeErrors", typeErrs)
}

func typeMessage(field string, t models.ParameterType) string {
	switch t {
	case models.ParameterTypeEmail:
		return fmt.Sprintf("%s must be an email address", field)
	case models.ParameterTypeNumber:
		return fmt.Sprintf("%s must be numeric", field)
	default:
		return fmt.Sprintf("%s must be of type %s", field, t)
	}
}
