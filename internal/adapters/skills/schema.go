package skills

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/xjson"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

func jsonType(name string) string {
	switch strings.ToLower(name) {
	case "str", "string":
		return "string"
	case "int", "integer":
		return "integer"
	case "float", "number":
		return "number"
	case "bool", "boolean":
		return "boolean"
	case "dict", "object", "map":
		return "object"
	case "list", "array":
		return "array"
	default:
		return ""
	}
}

// compileSchema builds an object schema from the declared parameter types.
// Tools without parameters accept anything.
func compileSchema(spec domain.ToolSpec) (*jsonschema.Schema, error) {
	if len(spec.Parameters) == 0 && len(spec.Required) == 0 {
		return nil, nil
	}

	properties := make(map[string]interface{}, len(spec.Parameters))
	for name, typ := range spec.Parameters {
		prop := map[string]interface{}{}
		if t := jsonType(typ); t != "" {
			prop["type"] = t
		}
		properties[name] = prop
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(spec.Required) > 0 {
		schema["required"] = spec.Required
	}

	b, err := xjson.Marshal(schema)
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

func validateParams(schema *jsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	// Round-trip so Go-typed values validate the same as decoded JSON.
	b, err := xjson.Marshal(params)
	if err != nil {
		return domain.NewKindError(domain.KindInvalidInput, "encode params", err)
	}
	var doc interface{}
	if err := xjson.Unmarshal(b, &doc); err != nil {
		return domain.NewKindError(domain.KindInvalidInput, "decode params", err)
	}

	if err := schema.Validate(doc); err != nil {
		return domain.NewKindError(domain.KindInvalidInput, "validate params", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}
	return nil
}
