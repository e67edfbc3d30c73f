package main

import (
	"os"
	"strings"

	"driftboard/internal/cli"
)

func isShortTaskID(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "task-") {
		return false
	}
	return len(s) > len("task-")
}

// rewriteDirectTaskLookupArgs makes `driftboard task-x7k` behave like
// `driftboard tasks show task-x7k`. Cobra treats the first non-flag token as
// a subcommand, so argv is rewritten before parsing. Persistent flags may
// precede the id, so the first positional token is what matters, not argv[1].
func rewriteDirectTaskLookupArgs(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--config": true,
		"--dir":    true,
	}
	boolFlags := map[string]bool{
		"--pretty":  true,
		"--verbose": true,
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && isShortTaskID(argv[i+1]) {
				out := make([]string, 0, len(argv)+2)
				out = append(out, argv[:i+1]...)
				out = append(out, "tasks", "show")
				out = append(out, argv[i+1:]...)
				return out
			}
			return argv
		}

		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "=") {
				continue
			}
			if boolFlags[a] {
				continue
			}
			if valueFlags[a] {
				i++ // skip the flag's value
				continue
			}
			continue
		}

		if isShortTaskID(a) {
			out := make([]string, 0, len(argv)+2)
			out = append(out, argv[:i]...)
			out = append(out, "tasks", "show")
			out = append(out, argv[i:]...)
			return out
		}
		return argv
	}

	return argv
}

func main() {
	os.Args = rewriteDirectTaskLookupArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
