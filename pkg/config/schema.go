package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// expectationSchemaJSON is the JSON Schema document loaded expectation
// definitions must satisfy before an ExpectationValidator accepts them.
// Intentionally permissive on the action payload (the ten action kinds'
// exact shapes are enforced by pkg/expectation's document decoding), and
// strict only on the structural envelope every expectation must have.
const expectationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "matcher", "action"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "matcher": {
      "type": "object",
      "properties": {
        "method": {"type": "string"},
        "pathExact": {"type": "string"},
        "pathPrefix": {"type": "string"},
        "headers": {"type": "object"},
        "queryParams": {"type": "object"}
      }
    },
    "action": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {
          "type": "string",
          "enum": [
            "Response", "ResponseTemplate", "ResponseClassCallback",
            "ResponseObjectCallback", "Forward", "ForwardTemplate",
            "ForwardClassCallback", "ForwardObjectCallback",
            "ForwardReplace", "Error"
          ]
        }
      }
    }
  }
}`

// ExpectationValidator validates loaded expectation JSON documents
// against expectationSchemaJSON before pkg/cli hands them to
// pkg/expectation for decoding, grounded on
// _examples/getmockd-mockd/pkg/validation/validator.go's
// once.Do-compiled jsonschema.Schema idiom.
type ExpectationValidator struct {
	once        sync.Once
	schema      *jsonschema.Schema
	schemaError error
}

// NewExpectationValidator returns a validator ready for concurrent use;
// the schema compiles lazily on first Validate call.
func NewExpectationValidator() *ExpectationValidator {
	return &ExpectationValidator{}
}

func (v *ExpectationValidator) compile() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("expectation.json", bytes.NewReader([]byte(expectationSchemaJSON))); err != nil {
		return nil, fmt.Errorf("config: add schema resource: %w", err)
	}
	return compiler.Compile("expectation.json")
}

// Validate checks raw (a JSON-encoded expectation document) against the
// expectation schema.
func (v *ExpectationValidator) Validate(raw []byte) error {
	v.once.Do(func() {
		v.schema, v.schemaError = v.compile()
	})
	if v.schemaError != nil {
		return fmt.Errorf("config: schema compilation: %w", v.schemaError)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}
