package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/eleven-am/specter/internal/domain"
)

// workspace confines file tools to a single directory tree.
type workspace struct {
	root string
}

func newWorkspace(root string) (*workspace, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &workspace{root: filepath.Clean(abs)}, nil
}

// resolve maps path onto the workspace. Relative paths are taken from the
// root; anything that ends up outside it is refused.
func (w *workspace) resolve(path string) (string, error) {
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(w.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(w.root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.NewKindError(domain.KindPermission, "resolve path",
			fmt.Errorf("%w: path outside workspace root: %s", domain.ErrPermissionDenied, path))
	}
	return candidate, nil
}

func (w *workspace) read(_ context.Context, params map[string]interface{}) (interface{}, error) {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		return domain.ToolFail("path is required"), nil
	}
	target, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	maxChars := intParam(params, "max_chars", defaultMaxChars)

	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ToolFail("File not found"), nil
		}
		return domain.ToolFail(err.Error()), nil
	}

	content := strings.ToValidUTF8(string(data), "")
	if runes := []rune(content); maxChars > 0 && len(runes) > maxChars {
		content = string(runes[:maxChars]) + "\n...truncated"
	}
	return domain.ToolOK(map[string]interface{}{
		"path":    target,
		"content": content,
	}), nil
}

func (w *workspace) write(_ context.Context, params map[string]interface{}) (interface{}, error) {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		return domain.ToolFail("path is required"), nil
	}
	content, _ := stringParam(params, "content")
	target, err := w.resolve(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return domain.ToolFail(err.Error()), nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if boolParam(params, "append") {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		return domain.ToolFail(err.Error()), nil
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return domain.ToolFail(err.Error()), nil
	}
	return domain.ToolOK(map[string]interface{}{
		"path":  target,
		"bytes": len(content),
	}), nil
}

func (w *workspace) list(_ context.Context, params map[string]interface{}) (interface{}, error) {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		path = "."
	}
	pattern, ok := stringParam(params, "pattern")
	if !ok || pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return domain.ToolFail("invalid pattern: " + pattern), nil
	}

	target, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(target); err != nil {
		return domain.ToolFail("Path not found"), nil
	}

	items, err := doublestar.Glob(os.DirFS(target), pattern)
	if err != nil {
		return domain.ToolFail(err.Error()), nil
	}
	if items == nil {
		items = []string{}
	}
	return domain.ToolOK(map[string]interface{}{
		"path":  target,
		"items": items,
	}), nil
}
