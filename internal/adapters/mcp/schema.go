package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
}

// SchemaFor derives a tool input schema from an argument struct. Fields
// without omitempty are required; descriptions and enums come from
// jsonschema struct tags or a JSONSchemaExtend method.
func SchemaFor(args any) (json.RawMessage, error) {
	schema := reflector.Reflect(args)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	return data, nil
}

// MustSchemaFor is SchemaFor for package-level argument types.
func MustSchemaFor(args any) json.RawMessage {
	data, err := SchemaFor(args)
	if err != nil {
		panic(err)
	}
	return data
}
