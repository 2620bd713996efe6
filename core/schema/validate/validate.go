package validate

import (
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/davidahmann/buildstamp/schemas"
)

// Validator checks JSON documents against one compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

func Compile(schemaBytes []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(schemaBytes)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

func (v *Validator) Validate(data []byte) error {
	result := v.schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}

var buildRecord = sync.OnceValues(func() (*Validator, error) {
	return Compile(schemas.BuildRecordV1)
})

// BuildRecord validates a build.json document against the embedded v1 schema.
func BuildRecord(data []byte) error {
	validator, err := buildRecord()
	if err != nil {
		return err
	}
	return validator.Validate(data)
}
