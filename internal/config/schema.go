package config

import (
	"encoding/json"
	"fmt"
	"sync"

	invopopSchema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"webdbg/internal/domain"
)

// schemaURL names the compiled schema in validation errors.
const schemaURL = "webdbg.schema.json"

// schemaMarshal is the JSON marshaler used by Schema. Package-level so tests
// can inject a failing marshaler.
var schemaMarshal = func(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

var (
	compiledOnce sync.Once
	compiled     *jsonschema.Schema
	compileErr   error
)

// Schema returns the JSON Schema of a config file, reflected from domain.Config.
// Every field is optional; unknown keys are rejected.
func Schema() (string, error) {
	reflector := invopopSchema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := reflector.Reflect(&domain.Config{})
	s.Title = "webdbg configuration"
	data, err := schemaMarshal(s)
	if err != nil {
		return "", fmt.Errorf("config schema: %w", err)
	}
	return string(data), nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		var src string
		src, compileErr = Schema()
		if compileErr != nil {
			return
		}
		compiled, compileErr = jsonschema.CompileString(schemaURL, src)
	})
	return compiled, compileErr
}

// ValidateDocument checks the raw contents of a config file against Schema.
// YAML documents are converted to their JSON data model first.
func ValidateDocument(path string, data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	doc, err := decodeDocument(path, data)
	if err != nil {
		return fmt.Errorf("config parse: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func decodeDocument(path string, data []byte) (interface{}, error) {
	var doc interface{}
	if !isYAML(path) {
		err := json.Unmarshal(data, &doc)
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return map[string]interface{}{}, nil
	}
	// Round-trip through JSON so numbers and maps take the types the validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	doc = nil
	err = json.Unmarshal(raw, &doc)
	return doc, err
}
