// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://freshtrack.dev/schemas/config.schema.json"

const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var compiledSchema = sync.OnceValues(compileSchema)

// GenerateSchema returns the JSON Schema for the YAML config file.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Freshtrack Configuration"
	schema.Description = "Schema for freshtrack config.yaml files"
	// Every key is optional in the file.
	schema.Required = nil

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "marshal").Wrap(err)
	}
	return data, nil
}

// ValidateFile checks YAML config file contents against the schema.
// An empty document is valid.
func ValidateFile(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_INVALID_YAML").Wrap(err)
	}
	if doc == nil {
		return nil
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(normalizeYAML(doc)); err != nil {
		return oops.Code("CONFIG_SCHEMA_VIOLATION").Wrap(err)
	}
	return nil
}

func compileSchema() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "parse").Wrap(err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", doc); err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "add resource").Wrap(err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "compile").Wrap(err)
	}
	return sch, nil
}

// normalizeYAML converts yaml.v3 output into the types the validator
// accepts. Non-string map keys are stringified.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			ks, ok := k.(string)
			if !ok {
				b, _ := json.Marshal(k) //nolint:errcheck // scalar keys always marshal
				ks = string(b)
			}
			out[ks] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	case uint64:
		return int64(val) //nolint:gosec // G115: YAML integers in config are small
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}
