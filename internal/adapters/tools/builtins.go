package tools

import (
	"net/http"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/ports"
)

// Registrar is the registry surface needed to install builtins.
type Registrar interface {
	RegisterTool(name string, fn ports.ToolFunc, spec domain.ToolSpec) error
}

type Config struct {
	WorkspaceRoot string
	HTTPClient    *http.Client
	SearchURL     string
}

type builtin struct {
	fn   ports.ToolFunc
	spec domain.ToolSpec
}

// RegisterBuiltins installs the standard tool set on r.
func RegisterBuiltins(r Registrar, cfg Config) error {
	ws, err := newWorkspace(cfg.WorkspaceRoot)
	if err != nil {
		return err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	searchURL := cfg.SearchURL
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	web := &webTools{client: client, searchURL: searchURL}

	builtins := []builtin{
		{calculatorTool, domain.ToolSpec{
			Name:        "calculator",
			Description: "Evaluate an arithmetic expression (+ - * / // % **)",
			Parameters:  map[string]string{"expression": "string"},
			Required:    []string{"expression"},
			Category:    "math",
			Example:     map[string]interface{}{"expression": "2 + 2 * 3"},
		}},
		{web.fetch, domain.ToolSpec{
			Name:        "web_fetch",
			Description: "Fetch a URL and return its visible text",
			Parameters:  map[string]string{"url": "string", "timeout": "integer", "max_chars": "integer"},
			Required:    []string{"url"},
			Category:    "web",
			Example:     map[string]interface{}{"url": "https://example.com"},
		}},
		{web.search, domain.ToolSpec{
			Name:        "web_search",
			Description: "Search the web and return result links",
			Parameters:  map[string]string{"query": "string", "max_results": "integer"},
			Required:    []string{"query"},
			Category:    "web",
			Example:     map[string]interface{}{"query": "golang generics"},
		}},
		{ws.read, domain.ToolSpec{
			Name:        "file_read",
			Description: "Read a text file inside the workspace",
			Parameters:  map[string]string{"path": "string", "max_chars": "integer"},
			Required:    []string{"path"},
			Category:    "files",
		}},
		{ws.write, domain.ToolSpec{
			Name:        "file_write",
			Description: "Write or append text to a file inside the workspace",
			Parameters:  map[string]string{"path": "string", "content": "string", "append": "boolean"},
			Required:    []string{"path", "content"},
			Category:    "files",
		}},
		{ws.list, domain.ToolSpec{
			Name:        "file_list",
			Description: "List workspace files matching a glob pattern (** supported)",
			Parameters:  map[string]string{"path": "string", "pattern": "string"},
			Category:    "files",
			Example:     map[string]interface{}{"path": ".", "pattern": "**/*.md"},
		}},
		{emailSend, domain.ToolSpec{
			Name:        "email_send",
			Description: "Send an email",
			Parameters:  map[string]string{"to": "string", "subject": "string", "body": "string"},
			Required:    []string{"to", "subject", "body"},
			Category:    "email",
		}},
		{emailSearch, domain.ToolSpec{
			Name:        "email_search",
			Description: "Search the mailbox",
			Parameters:  map[string]string{"query": "string", "max_results": "integer"},
			Required:    []string{"query"},
			Category:    "email",
		}},
	}

	for _, b := range builtins {
		if err := r.RegisterTool(b.spec.Name, b.fn, b.spec); err != nil {
			return err
		}
	}
	return nil
}
