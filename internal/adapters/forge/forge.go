package forge

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
	"github.com/zeebo/blake3"
)

// FallbackSource is substituted when generated code fails validation. It
// echoes its inputs back as data.
const FallbackSource = `def run(params):
    return {"success": True, "data": params, "error": None}
`

var (
	slugPattern  = regexp.MustCompile(`[^a-z0-9]+`)
	fencePattern = regexp.MustCompile("(?s)```(?:python|py)?\\s*\\n(.*?)```")
)

// SkillRegistrar makes a stored skill callable.
type SkillRegistrar interface {
	RegisterRecord(rec domain.SkillRecord) error
}

type Forge struct {
	generator ports.GenerationPort
	sandbox   ports.SandboxPort
	registry  SkillRegistrar
	store     ports.SkillStorePort
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewForge builds a forge. store may be nil, in which case skills are
// registered but not persisted.
func NewForge(generator ports.GenerationPort, sandbox ports.SandboxPort, registry SkillRegistrar, store ports.SkillStorePort, timeout time.Duration, logger *slog.Logger) *Forge {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = domain.DefaultSandboxConfig().Timeout
	}
	return &Forge{
		generator: generator,
		sandbox:   sandbox,
		registry:  registry,
		store:     store,
		timeout:   timeout,
		logger:    logger.With("component", "skill-forge"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Forge synthesises a tool from a description and optional examples. Code
// that fails its own tests is replaced by FallbackSource, and the returned
// sandbox result always describes the code that was finally accepted.
func (f *Forge) Forge(ctx context.Context, description string, examples []domain.ForgeExample) (domain.ForgeResult, error) {
	name := Slugify(description)
	params, types := InferParams(examples)
	tests := BuildTestScript(examples)

	code, err := f.generate(ctx, description, params, examples)
	if err != nil {
		f.logger.Warn("skill generation failed", "skill", name, "error", err)
	}

	var result domain.SandboxResult
	usedFallback := code == ""
	if !usedFallback {
		result = f.validate(ctx, code, tests)
		if !result.Success {
			f.logger.Info("generated skill failed validation",
				"skill", name,
				"timed_out", result.TimedOut,
				"stderr", truncate(result.Stderr, 500))
			usedFallback = true
		}
	}
	if usedFallback {
		code = FallbackSource
		result = f.validate(ctx, code, tests)
	}

	rec := domain.SkillRecord{
		ID:          name + "_v1",
		Name:        name,
		Description: description,
		Version:     1,
		Kind:        domain.SkillKindGenerated,
		Params:      params,
		ParamTypes:  types,
		Code:        code,
		CodeHash:    HashSource(code),
		Examples:    examples,
		CreatedAt:   f.now(),
	}
	if err := f.registry.RegisterRecord(rec); err != nil {
		return domain.ForgeResult{}, fmt.Errorf("register skill %s: %w", name, err)
	}
	if f.store != nil {
		if err := f.store.SaveSkill(ctx, rec); err != nil {
			return domain.ForgeResult{}, fmt.Errorf("persist skill %s: %w", name, err)
		}
	}

	f.logger.Info("skill forged",
		"skill", name,
		"kind", rec.Kind,
		"fallback", usedFallback,
		"validated", result.Success,
		"code_hash", rec.CodeHash)

	return domain.ForgeResult{
		Created: true,
		Skill: domain.SkillInfo{
			ID:          rec.ID,
			Name:        rec.Name,
			Description: rec.Description,
			Version:     rec.Version,
		},
		Sandbox:      result,
		UsedFallback: usedFallback,
	}, nil
}

func (f *Forge) generate(ctx context.Context, description string, params []string, examples []domain.ForgeExample) (string, error) {
	if f.generator == nil {
		return "", nil
	}
	raw, err := f.generator.Generate(ctx, BuildPrompt(description, params, examples), ports.WithTemperature(0))
	if err != nil {
		return "", err
	}
	return ExtractSource(raw), nil
}

func (f *Forge) validate(ctx context.Context, code, tests string) domain.SandboxResult {
	if f.sandbox == nil {
		return domain.SandboxResult{Success: false, Stderr: "sandbox unavailable"}
	}
	result, err := f.sandbox.Run(ctx, code, tests, f.timeout)
	if err != nil {
		return domain.SandboxResult{Success: false, Stderr: err.Error()}
	}
	return result
}

// Slugify lowercases text and joins alphanumeric runs with underscores.
func Slugify(text string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "skill"
	}
	return slug
}

// InferParams returns the sorted union of example input keys with a JSON type
// for each key whose examples agree. With no examples the skill takes a
// single "input" parameter.
func InferParams(examples []domain.ForgeExample) ([]string, map[string]string) {
	types := make(map[string]string)
	conflict := make(map[string]bool)
	for _, ex := range examples {
		for key, value := range ex.Input {
			t := valueType(value)
			if prev, seen := types[key]; seen && prev != t {
				conflict[key] = true
			}
			types[key] = t
		}
	}
	if len(types) == 0 {
		return []string{"input"}, map[string]string{}
	}

	names := make([]string, 0, len(types))
	for key := range types {
		names = append(names, key)
		if conflict[key] || types[key] == "" {
			delete(types, key)
		}
	}
	sort.Strings(names)
	return names, types
}

func valueType(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return ""
	}
}

// ExtractSource pulls the first fenced code block out of model output, or
// returns the trimmed output when there is none.
func ExtractSource(raw string) string {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1]) + "\n"
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return trimmed + "\n"
}

func HashSource(code string) string {
	sum := blake3.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
