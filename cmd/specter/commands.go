package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/xjson"
)

func runText(c *client, args []string, out io.Writer) error {
	var userID, agentID string
	var words []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--user-id":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			userID = v
		case "--agent-id":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			agentID = v
		default:
			words = append(words, args[i])
		}
	}
	if len(words) == 0 {
		return errUsage
	}

	payload := map[string]interface{}{"text": strings.Join(words, " ")}
	if userID != "" {
		payload["user_id"] = userID
	}
	if agentID != "" {
		payload["agent_id"] = agentID
	}
	return c.print(out, "POST", "/webhook/cli", payload)
}

func forgeSkill(c *client, args []string, out io.Writer) error {
	var examplesPath string
	var words []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--examples":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			examplesPath = v
		default:
			words = append(words, args[i])
		}
	}
	if len(words) == 0 {
		return errUsage
	}

	payload := map[string]interface{}{"description": strings.Join(words, " ")}
	if examplesPath != "" {
		data, err := os.ReadFile(examplesPath)
		if err != nil {
			return fmt.Errorf("read examples: %w", err)
		}
		var examples []domain.ForgeExample
		if err := xjson.Unmarshal(data, &examples); err != nil {
			return fmt.Errorf("parse examples %s: %w", examplesPath, err)
		}
		payload["examples"] = examples
	}
	return c.print(out, "POST", "/skills/forge", payload)
}

func invokeTool(c *client, args []string, out io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	params := map[string]interface{}{}
	if len(args) == 2 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read params: %w", err)
		}
		if err := xjson.Unmarshal(data, &params); err != nil {
			return fmt.Errorf("parse params %s: %w", args[1], err)
		}
	}
	return c.print(out, "POST", "/tools/invoke", map[string]interface{}{
		"tool_name": args[0],
		"params":    params,
	})
}

func execCommand(c *client, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case "get", "replay", "audit":
		if len(args) != 2 {
			return errUsage
		}
		id := args[1]
		switch args[0] {
		case "get":
			return c.print(out, "GET", "/executions/"+id, nil)
		case "replay":
			return c.print(out, "POST", "/executions/"+id+"/replay", nil)
		default:
			return c.print(out, "GET", "/executions/"+id+"/audit", nil)
		}
	case "list":
		path := "/executions"
		for i := 1; i < len(args); i++ {
			switch args[i] {
			case "--limit":
				v, err := flagValue(args, &i)
				if err != nil {
					return err
				}
				if _, err := strconv.Atoi(v); err != nil {
					return fmt.Errorf("--limit must be an integer: %s", v)
				}
				path += "?limit=" + v
			default:
				return fmt.Errorf("unknown arg: %s", args[i])
			}
		}
		return c.print(out, "GET", path, nil)
	default:
		return errUsage
	}
}

type skillFile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func skillCommand(c *client, args []string, out io.Writer) error {
	if len(args) != 2 || args[0] != "install" {
		return errUsage
	}
	path := args[1]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read skill: %w", err)
	}

	var sf skillFile
	if err := xjson.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse skill %s: %w", path, err)
	}
	if sf.Name == "" {
		sf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if sf.Description == "" {
		sf.Description = "Installed skill"
	}
	return c.print(out, "POST", "/skills/install", sf)
}
