package compiler

import (
	"fmt"

	"github.com/eleven-am/specter/internal/xjson"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const planSchemaURL = "specter://execution-plan.json"

const planSchema = `{
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "intent_summary": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "id": {"type": "string"},
          "type": {"enum": ["tool", "llm", "condition", "human_confirm"]},
          "spec": {
            "type": "object",
            "properties": {
              "tool_name": {"type": "string"},
              "params": {"type": "object"},
              "prompt": {"type": "string"},
              "condition": {"type": "string"}
            }
          },
          "deps": {"type": "array", "items": {"type": "string"}},
          "error_strategy": {"enum": ["retry", "heal", "report"]},
          "timeout_seconds": {"type": "integer", "minimum": 1},
          "stream_output": {"type": "boolean"}
        }
      }
    }
  }
}`

var compiledPlanSchema = jsonschema.MustCompileString(planSchemaURL, planSchema)

// validatePlanDocument checks raw plan JSON against the plan schema before it
// is decoded into domain types.
func validatePlanDocument(raw []byte) error {
	var doc interface{}
	if err := xjson.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("malformed plan json: %w", err)
	}
	if err := compiledPlanSchema.Validate(doc); err != nil {
		return fmt.Errorf("plan schema: %w", err)
	}
	return nil
}
