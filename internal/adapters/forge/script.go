package forge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/xjson"
)

// BuildPrompt asks for a single run(params) entry point returning the
// standard {success, data, error} record.
func BuildPrompt(description string, params []string, examples []domain.ForgeExample) string {
	var b strings.Builder
	b.WriteString("Write a Python module implementing this skill:\n")
	b.WriteString(description)
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("- Define exactly one entry point: def run(params: dict) -> dict\n")
	fmt.Fprintf(&b, "- params contains the keys: %s\n", strings.Join(params, ", "))
	b.WriteString(`- Return {"success": bool, "data": any, "error": str or None}` + "\n")
	b.WriteString("- Use only the Python standard library. No network or filesystem access.\n")
	b.WriteString("- Reply with the code only, inside one ```python block.\n")

	if len(examples) > 0 {
		b.WriteString("\nExamples:\n")
		for _, ex := range examples {
			in, _ := xjson.Marshal(ex.Input)
			fmt.Fprintf(&b, "- input: %s", in)
			if ex.Output != nil {
				out, _ := xjson.Marshal(ex.Output)
				fmt.Fprintf(&b, " -> data: %s", out)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// BuildTestScript emits a script asserting, per example, a successful result
// and, when an output is given, an exact data match. Values travel as JSON
// text so Python and Go agree on their shape.
func BuildTestScript(examples []domain.ForgeExample) string {
	var b strings.Builder
	b.WriteString("import json\n\nfrom skill_module import run\n\n")

	if len(examples) == 0 {
		b.WriteString("result = run({\"input\": \"test\"})\n")
		b.WriteString("assert isinstance(result, dict), result\n")
		b.WriteString("assert result.get(\"success\") is True, result\n")
		return b.String()
	}

	for i, ex := range examples {
		input := ex.Input
		if input == nil {
			input = map[string]interface{}{}
		}
		in, err := xjson.Marshal(input)
		if err != nil {
			in = []byte("{}")
		}
		fmt.Fprintf(&b, "result_%d = run(json.loads(%s))\n", i, strconv.Quote(string(in)))
		fmt.Fprintf(&b, "assert isinstance(result_%d, dict), result_%d\n", i, i)
		fmt.Fprintf(&b, "assert result_%d.get(\"success\") is True, result_%d\n", i, i)
		if ex.Output != nil {
			out, err := xjson.Marshal(ex.Output)
			if err == nil {
				fmt.Fprintf(&b, "assert result_%d.get(\"data\") == json.loads(%s), result_%d\n", i, strconv.Quote(string(out)), i)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
