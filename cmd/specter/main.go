package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  specter serve [--config <file.yaml>] [--addr <host:port>]")
	fmt.Fprintln(os.Stderr, "  specter run [--user-id <id>] [--agent-id <id>] <text>")
	fmt.Fprintln(os.Stderr, "  specter forge [--examples <file.json>] <description>")
	fmt.Fprintln(os.Stderr, "  specter tools")
	fmt.Fprintln(os.Stderr, "  specter invoke <tool> [<params.json>]")
	fmt.Fprintln(os.Stderr, "  specter exec get <id>")
	fmt.Fprintln(os.Stderr, "  specter exec list [--limit <n>]")
	fmt.Fprintln(os.Stderr, "  specter exec replay <id>")
	fmt.Fprintln(os.Stderr, "  specter exec audit <id>")
	fmt.Fprintln(os.Stderr, "  specter skill install <file.json>")
	fmt.Fprintln(os.Stderr, "  specter heal <execution_id> <fix_type>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "client commands talk to $SPECTER_BASE_URL (default http://127.0.0.1:8080)")
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}

	if args[0] == "serve" {
		return serve(args[1:])
	}

	c := newClient(baseURL())
	switch args[0] {
	case "run":
		return runText(c, args[1:], out)
	case "forge":
		return forgeSkill(c, args[1:], out)
	case "tools":
		return c.print(out, "GET", "/tools", nil)
	case "invoke":
		return invokeTool(c, args[1:], out)
	case "exec":
		return execCommand(c, args[1:], out)
	case "skill":
		return skillCommand(c, args[1:], out)
	case "heal":
		if len(args) != 3 {
			return errUsage
		}
		return c.print(out, "POST", "/healing/override", map[string]string{
			"execution_id": args[1],
			"fix_type":     args[2],
		})
	default:
		return errUsage
	}
}

func baseURL() string {
	if v := os.Getenv("SPECTER_BASE_URL"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

// flagValue returns the value following args[*i], advancing i.
func flagValue(args []string, i *int) (string, error) {
	name := args[*i]
	*i++
	if *i >= len(args) {
		return "", fmt.Errorf("%s requires a value", name)
	}
	return args[*i], nil
}
