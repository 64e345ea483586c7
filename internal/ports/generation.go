package ports

import "context"

type GenerateOptions struct {
	JSONMode    bool
	Temperature *float64
	MaxTokens   int
}

type GenerateOption func(*GenerateOptions)

func WithJSONMode() GenerateOption {
	return func(o *GenerateOptions) {
		o.JSONMode = true
	}
}

func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &t
	}
}

func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

func ApplyGenerateOptions(opts ...GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GenerationPort produces text for a prompt. It fails only when no backend
// could answer.
type GenerationPort interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)
}
