package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/xjson"
)

const (
	moduleFile  = "skill_module.py"
	testFile    = "skill_test.py"
	harnessFile = "skill_invoke.py"
)

// invokeHarness reads params as JSON on stdin, calls run(params) and prints
// the result as JSON on stdout.
const invokeHarness = `import json
import sys

from skill_module import run

params = json.loads(sys.stdin.read() or "{}")
print(json.dumps(run(params), default=str))
`

// Runner executes untrusted code in a throwaway directory under a separate
// interpreter process. It isolates the filesystem view and enforces a wall
// clock limit; it is not a security boundary.
type Runner struct {
	config domain.SandboxConfig
	logger *slog.Logger
}

func NewRunner(config domain.SandboxConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := domain.DefaultSandboxConfig()
	if config.Interpreter == "" {
		config.Interpreter = defaults.Interpreter
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxOutput <= 0 {
		config.MaxOutput = defaults.MaxOutput
	}

	return &Runner{
		config: config,
		logger: logger.With("component", "sandbox"),
	}
}

// Run writes code and tests side by side and runs the tests. Success means
// the test process exited with status zero.
func (r *Runner) Run(ctx context.Context, code, tests string, timeout time.Duration) (domain.SandboxResult, error) {
	dir, err := r.workspace(map[string]string{
		moduleFile: code,
		testFile:   tests,
	})
	if err != nil {
		return domain.SandboxResult{}, err
	}
	defer os.RemoveAll(dir)

	out, err := r.exec(ctx, dir, testFile, nil, timeout)
	if err != nil {
		return domain.SandboxResult{}, err
	}

	r.logger.Debug("sandbox run finished",
		"success", out.Success,
		"timed_out", out.TimedOut,
		"duration", out.Duration)
	return out, nil
}

// Invoke runs the module's run(params) entry point and decodes its JSON result.
func (r *Runner) Invoke(ctx context.Context, code string, params map[string]interface{}, timeout time.Duration) (interface{}, error) {
	input, err := xjson.Marshal(params)
	if err != nil {
		return nil, domain.NewKindError(domain.KindInvalidInput, "encode params", err)
	}

	dir, err := r.workspace(map[string]string{
		moduleFile:  code,
		harnessFile: invokeHarness,
	})
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out, err := r.exec(ctx, dir, harnessFile, input, timeout)
	if err != nil {
		return nil, err
	}
	if out.TimedOut {
		return nil, domain.NewKindError(domain.KindTimeout, "invoke skill", domain.ErrTimeout)
	}
	if !out.Success {
		return nil, classifyFailure(out.Stderr)
	}

	var result interface{}
	if err := xjson.Unmarshal([]byte(strings.TrimSpace(out.Stdout)), &result); err != nil {
		return nil, domain.NewKindError(domain.KindSyntax, "decode skill output", err)
	}
	return result, nil
}

func (r *Runner) workspace(files map[string]string) (string, error) {
	dir, err := os.MkdirTemp(r.config.TempDir, "specter-sandbox-*")
	if err != nil {
		return "", fmt.Errorf("create sandbox dir: %w", err)
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return dir, nil
}

func (r *Runner) exec(ctx context.Context, dir, script string, stdin []byte, timeout time.Duration) (domain.SandboxResult, error) {
	if timeout <= 0 {
		timeout = r.config.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.config.Interpreter, script)
	cmd.Dir = dir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONIOENCODING=utf-8",
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	stdout := &cappedBuffer{limit: r.config.MaxOutput}
	stderr := &cappedBuffer{limit: r.config.MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		r.logger.Warn("sandbox process timed out", "timeout", timeout)
		return domain.SandboxResult{
			Success:  false,
			Stderr:   "Timeout",
			TimedOut: true,
			Duration: duration,
		}, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return domain.SandboxResult{}, ctx.Err()
			}
			return domain.SandboxResult{
				Success:  false,
				Stdout:   stdout.String(),
				Stderr:   err.Error(),
				Duration: duration,
			}, nil
		}
	}

	return domain.SandboxResult{
		Success:  err == nil,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}, nil
}

func classifyFailure(stderr string) error {
	msg := strings.TrimSpace(stderr)
	if lines := strings.Split(msg, "\n"); len(lines) > 0 {
		msg = lines[len(lines)-1]
	}
	err := errors.New(msg)

	switch {
	case strings.Contains(stderr, "SyntaxError"), strings.Contains(stderr, "IndentationError"):
		return domain.NewKindError(domain.KindSyntax, "invoke skill", err)
	case strings.Contains(stderr, "PermissionError"):
		return domain.NewKindError(domain.KindPermission, "invoke skill", err)
	default:
		return domain.NewKindError(domain.KindInternal, "invoke skill", err)
	}
}

// cappedBuffer keeps the first limit bytes and silently drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if remaining := c.limit - c.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			c.buf.Write(p[:remaining])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
