package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request payload kinds with a JSON Schema in the schemas directory.
const (
	PayloadCreateTask      = "task"
	PayloadRegisterService = "service"
)

// Validator rejects malformed request payloads against the platform's JSON
// Schemas before any state is touched.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator loads and compiles all *.json schema files from schemaDir.
// File names (minus a ".v1" version suffix) become payload kinds.
func NewValidator(schemaDir string) (*Validator, error) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		kind := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		kind = strings.TrimSuffix(kind, ".v1")
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		id := "https://localpro.dev/schemas/" + kind
		schemas[kind], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", kind, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// ValidatePayload hard-rejects a payload that does not match the schema for
// its kind. The error wraps ErrValidation.
func (v *Validator) ValidatePayload(kind string, payload []byte) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("unknown payload kind %q", kind)
	}
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
