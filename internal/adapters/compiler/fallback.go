package compiler

import (
	"regexp"
	"strings"

	"github.com/eleven-am/specter/internal/domain"
)

var (
	urlPattern        = regexp.MustCompile(`https?://[^\s<>"']+`)
	arithmeticPattern = regexp.MustCompile(`^[\d\s+\-*/%().]+$`)
	digitPattern      = regexp.MustCompile(`\d`)
)

// Fallback builds the deterministic single-node graph used whenever a plan
// cannot be obtained or accepted.
func Fallback(input string) *domain.ExecutionGraph {
	trimmed := strings.TrimSpace(input)

	var node domain.Node
	switch {
	case urlPattern.MatchString(trimmed):
		url := strings.TrimRight(urlPattern.FindString(trimmed), ".,;:!?)")
		node = domain.Node{
			ID:   "web_fetch_1",
			Type: domain.NodeTypeTool,
			Spec: domain.NodeSpec{
				ToolName: "web_fetch",
				Params:   map[string]interface{}{"url": url},
			},
		}
	case isArithmetic(trimmed):
		node = domain.Node{
			ID:   "calculator_1",
			Type: domain.NodeTypeTool,
			Spec: domain.NodeSpec{
				ToolName: "calculator",
				Params:   map[string]interface{}{"expression": trimmed},
			},
		}
	default:
		node = domain.Node{
			ID:   "llm_1",
			Type: domain.NodeTypeLLM,
			Spec: domain.NodeSpec{Prompt: "Respond to: " + input},
		}
	}

	node.ErrorStrategy = domain.StrategyHeal
	return &domain.ExecutionGraph{Nodes: []domain.Node{node}, MaxParallel: 1}
}

func isArithmetic(s string) bool {
	return s != "" && arithmeticPattern.MatchString(s) && digitPattern.MatchString(s)
}
