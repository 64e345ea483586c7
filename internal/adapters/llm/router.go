package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eleven-am/specter/internal/adapters/retry"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

const defaultRouteTimeout = 15 * time.Second

type route struct {
	config  domain.LLMRoute
	model   llms.Model
	limiter *rate.Limiter
}

func (r route) name() string {
	return r.config.Provider + ":" + r.config.Model
}

// Router tries each configured route in priority order and returns the first
// non-empty answer. With no routes configured it echoes the prompt back.
type Router struct {
	routes      []route
	retry       *retry.Policy
	temperature float64
	logger      *slog.Logger
}

type RouterOption func(*routerOptions)

type routerOptions struct {
	factory ModelFactory
	retry   *retry.Policy
}

func WithModelFactory(factory ModelFactory) RouterOption {
	return func(o *routerOptions) {
		o.factory = factory
	}
}

func WithRetryPolicy(p *retry.Policy) RouterOption {
	return func(o *routerOptions) {
		o.retry = p
	}
}

func NewRouter(cfg domain.LLMConfig, logger *slog.Logger, opts ...RouterOption) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	options := routerOptions{factory: NewModel}
	for _, opt := range opts {
		opt(&options)
	}
	if options.retry == nil {
		options.retry = retry.DefaultPolicy()
	}

	configs := make([]domain.LLMRoute, len(cfg.Routes))
	copy(configs, cfg.Routes)
	sort.SliceStable(configs, func(i, j int) bool {
		return configs[i].Priority < configs[j].Priority
	})

	routes := make([]route, 0, len(configs))
	for _, rc := range configs {
		model, err := options.factory(rc)
		if err != nil {
			return nil, fmt.Errorf("llm route %s:%s: %w", rc.Provider, rc.Model, err)
		}
		r := route{config: rc, model: model}
		if rc.RequestsPerSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rc.RequestsPerSecond), 1)
		}
		routes = append(routes, r)
	}

	return &Router{
		routes:      routes,
		retry:       options.retry.WithRetryable(retryable),
		temperature: cfg.Temperature,
		logger:      logger.With("component", "llm-router"),
	}, nil
}

func (r *Router) Routes() []domain.LLMRoute {
	out := make([]domain.LLMRoute, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.config
	}
	return out
}

func (r *Router) Generate(ctx context.Context, prompt string, opts ...ports.GenerateOption) (string, error) {
	if len(r.routes) == 0 {
		return prompt, nil
	}

	options := ports.ApplyGenerateOptions(opts...)
	var failures []string
	var lastKind domain.ErrorKind

	for _, rt := range r.routes {
		text, err := retry.Run(ctx, r.retry, func(ctx context.Context) (string, error) {
			return r.call(ctx, rt, prompt, options)
		})
		if err == nil {
			return text, nil
		}

		lastKind = classify(err)
		r.logger.Warn("llm route failed",
			"route", rt.name(),
			"kind", lastKind,
			"error", err)
		failures = append(failures, fmt.Sprintf("%s: %v", rt.name(), err))

		if ctx.Err() != nil {
			break
		}
	}

	return "", domain.NewKindError(lastKind, "generate",
		fmt.Errorf("%w: %s", domain.ErrAllRoutesFailed, strings.Join(failures, "; ")))
}

func (r *Router) call(ctx context.Context, rt route, prompt string, options ports.GenerateOptions) (string, error) {
	if rt.limiter != nil {
		if err := rt.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	timeout := rt.config.Timeout
	if timeout <= 0 {
		timeout = defaultRouteTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	temperature := r.temperature
	if options.Temperature != nil {
		temperature = *options.Temperature
	}
	callOpts := []llms.CallOption{llms.WithTemperature(temperature)}
	if options.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}
	if options.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(options.MaxTokens))
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := rt.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
