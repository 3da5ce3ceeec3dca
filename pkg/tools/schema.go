package tools

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator validates decoded arguments against a specification's parameter schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the parameter schema of spec. A specification without parameters
// accepts any object.
func NewValidator(spec Specification) (*Validator, error) {
	if len(spec.Parameters) == 0 {
		return &Validator{}, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.Parameters))
	if err != nil {
		return nil, fmt.Errorf("invalid parameter schema for %s: %w", spec.Name, err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks args against the compiled schema.
func (v *Validator) Validate(args map[string]any) error {
	if v == nil || v.schema == nil {
		return nil
	}
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("%w: validation errors: %s", ErrInvalidArguments, strings.Join(errs, "; "))
	}
	return nil
}

// ObjectSchema builds a JSON schema for an object with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Property builds a single schema property.
func Property(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
