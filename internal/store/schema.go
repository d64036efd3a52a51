package store

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	entriesSchemaName = "roster-entries.schema.json"
	flatSchemaName    = "roster-flat.schema.json"
)

// entriesSchema describes the value of the "entries" member: a list of
// {key, values} objects. Member names are matched case-insensitively to accept
// files written with capitalised names.
const entriesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "patternProperties": {
      "^[Kk][Ee][Yy]$": {"type": "string"},
      "^[Vv][Aa][Ll][Uu][Ee][Ss]$": {
        "type": ["array", "null"],
        "items": {"type": ["string", "null"]}
      }
    }
  }
}`

// flatSchema describes the flat form: every member is a list of strings.
const flatSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {
    "type": ["array", "null"],
    "items": {"type": ["string", "null"]}
  }
}`

var compiledSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	sources := map[string]string{
		entriesSchemaName: entriesSchema,
		flatSchemaName:    flatSchema,
	}
	for name, src := range sources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
		}
	}

	out := make(map[string]*jsonschema.Schema, len(sources))
	for name := range sources {
		sch, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		out[name] = sch
	}
	return out, nil
})

// validate checks raw JSON against one of the embedded schemas.
func validate(schemaName string, raw []byte) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	sch, ok := schemas[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema %s", schemaName)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("document does not match %s: %w", schemaName, err)
	}
	return nil
}
