package tools

import (
	"context"
	"testing"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2 + 2 * 3", 8},
		{"(2 + 2) * 3", 12},
		{"10 / 4", 2.5},
		{"7 // 2", 3},
		{"-7 // 2", -4},
		{"-7 % 3", 2},
		{"7 % -3", -2},
		{"2 ** 3 ** 2", 512},
		{"-2 ** 2", -4},
		{"2 ** -1", 0.5},
		{"--3", 3},
		{"1.5e2 + .5", 150.5},
		{" 42 ", 42},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Calculate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCalculateErrors(t *testing.T) {
	for _, expr := range []string{"", "1 / 0", "5 // 0", "5 % 0", "2 +", "(1 + 2", "1 + 2)", "import os", "2 $ 3"} {
		t.Run(expr, func(t *testing.T) {
			_, err := Calculate(expr)
			assert.Error(t, err)
		})
	}
}

func TestCalculatorToolReturnsFailureAsData(t *testing.T) {
	out, err := calculatorTool(context.Background(), map[string]interface{}{"expression": "1 / 0"})
	require.NoError(t, err)
	res := out.(domain.ToolResult)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "division by zero")

	out, err = calculatorTool(context.Background(), map[string]interface{}{"expression": "6 * 7"})
	require.NoError(t, err)
	assert.Equal(t, domain.ToolOK(42.0), out)

	out, err = calculatorTool(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, out.(domain.ToolResult).Success)
}
