package skills

import (
	"context"
	"fmt"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
)

// TemplateTool echoes its description, parameters and examples. It is the
// in-process stand-in for skills that carry no validated code.
func TemplateTool(description string, examples []domain.ForgeExample) ports.ToolFunc {
	if examples == nil {
		examples = []domain.ForgeExample{}
	}
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return domain.ToolOK(map[string]interface{}{
			"description": description,
			"params":      params,
			"examples":    examples,
		}), nil
	}
}

// GeneratedTool runs generated source through the sandbox for every call.
func GeneratedTool(code string, sandbox ports.SandboxPort, timeout time.Duration) ports.ToolFunc {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return sandbox.Invoke(ctx, code, params, timeout)
	}
}

func SpecFromRecord(rec domain.SkillRecord) domain.ToolSpec {
	params := make(map[string]string, len(rec.Params))
	for _, p := range rec.Params {
		params[p] = rec.ParamTypes[p]
	}

	spec := domain.ToolSpec{
		Name:        rec.Name,
		Description: rec.Description,
		Parameters:  params,
		Category:    "forged",
	}
	if len(rec.Examples) > 0 {
		spec.Example = rec.Examples[0].Input
	}
	return spec
}

// RegisterRecord recreates the tool described by a stored skill record.
func (r *Registry) RegisterRecord(rec domain.SkillRecord) error {
	var fn ports.ToolFunc
	switch rec.Kind {
	case domain.SkillKindGenerated:
		if r.sandbox == nil {
			return &domain.ToolRegistrationError{
				ToolName: rec.Name,
				Reason:   "generated skill requires a sandbox",
			}
		}
		fn = GeneratedTool(rec.Code, r.sandbox, r.sandboxTimeout)
	default:
		fn = TemplateTool(rec.Description, rec.Examples)
	}
	return r.RegisterTool(rec.Name, fn, SpecFromRecord(rec))
}

// LoadFromStore registers every persisted skill and returns how many were
// loaded. Records that cannot be registered are skipped and logged.
func (r *Registry) LoadFromStore(ctx context.Context, store ports.SkillStorePort) (int, error) {
	records, err := store.LoadSkills(ctx)
	if err != nil {
		return 0, fmt.Errorf("load skills: %w", err)
	}

	loaded := 0
	for _, rec := range records {
		if err := r.RegisterRecord(rec); err != nil {
			r.logger.Warn("skipping stored skill", "skill", rec.Name, "error", err)
			continue
		}
		loaded++
	}

	r.logger.Info("loaded skills from store", "count", loaded)
	return loaded, nil
}

// PersistTemplateSkill stores a description-only skill and registers it.
func (r *Registry) PersistTemplateSkill(ctx context.Context, store ports.SkillStorePort, name, description string) (domain.SkillRecord, error) {
	if name == "" {
		return domain.SkillRecord{}, &domain.ToolRegistrationError{ToolName: name, Reason: "skill name cannot be empty"}
	}

	rec := domain.SkillRecord{
		ID:          name + "_v1",
		Name:        name,
		Description: description,
		Version:     1,
		Kind:        domain.SkillKindTemplate,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.SaveSkill(ctx, rec); err != nil {
		return domain.SkillRecord{}, fmt.Errorf("persist skill %s: %w", name, err)
	}
	if err := r.RegisterRecord(rec); err != nil {
		return domain.SkillRecord{}, err
	}
	return rec, nil
}
