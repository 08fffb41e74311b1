package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxReadBytes caps how much of a file the read_file tool will load.
const maxReadBytes = 512 * 1024

// RegisterBuiltins adds the built-in tools to the registry. File tools are
// scoped to workDir and reject paths that escape it.
func RegisterBuiltins(reg *Registry, workDir string) error {
	builtins := []Tool{
		currentTimeTool(),
		calculateTool(),
		readFileTool(workDir),
		listDirTool(workDir),
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// BuiltinNames returns the names RegisterBuiltins registers, for seeding
// default policies.
func BuiltinNames() []string {
	return []string{"current_time", "calculate", "read_file", "list_dir"}
}

func currentTimeTool() Tool {
	return Tool{
		Name:        "current_time",
		Description: "Returns the current date and time in UTC, RFC 3339 format.",
		Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	}
}

func calculateTool() Tool {
	return Tool{
		Name:        "calculate",
		Description: "Evaluates an arithmetic expression with +, -, *, / and parentheses.",
		Parameters: Schema{
			Properties: map[string]Property{
				"expression": {Type: "string", Description: "The expression to evaluate, e.g. (2+3)*4"},
			},
			Required: []string{"expression"},
		},
		Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
			expr, err := stringArg(args, "expression")
			if err != nil {
				return "", err
			}
			value, err := evalExpression(expr)
			if err != nil {
				return "", err
			}
			return strconv.FormatFloat(value, 'f', -1, 64), nil
		},
	}
}

func readFileTool(workDir string) Tool {
	return Tool{
		Name:        "read_file",
		Description: "Reads a text file from the workspace.",
		Parameters: Schema{
			Properties: map[string]Property{
				"path": {Type: "string", Description: "File path relative to the workspace root"},
			},
			Required: []string{"path"},
		},
		Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
			rel, err := stringArg(args, "path")
			if err != nil {
				return "", err
			}
			full, err := resolveWorkspacePath(workDir, rel)
			if err != nil {
				return "", err
			}
			info, err := os.Stat(full)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", rel, err)
			}
			if info.IsDir() {
				return "", fmt.Errorf("%s is a directory", rel)
			}
			if info.Size() > maxReadBytes {
				return "", fmt.Errorf("%s is too large to read (%d bytes, limit %d)", rel, info.Size(), maxReadBytes)
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", rel, err)
			}
			return string(data), nil
		},
	}
}

func listDirTool(workDir string) Tool {
	return Tool{
		Name:        "list_dir",
		Description: "Lists the entries of a workspace directory.",
		Parameters: Schema{
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Directory path relative to the workspace root, defaults to the root"},
			},
		},
		Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
			rel := "."
			if _, ok := args["path"]; ok {
				s, err := stringArg(args, "path")
				if err != nil {
					return "", err
				}
				if s != "" {
					rel = s
				}
			}
			full, err := resolveWorkspacePath(workDir, rel)
			if err != nil {
				return "", err
			}
			entries, err := os.ReadDir(full)
			if err != nil {
				return "", fmt.Errorf("failed to list %s: %w", rel, err)
			}
			var b strings.Builder
			for _, entry := range entries {
				if entry.IsDir() {
					fmt.Fprintf(&b, "%s/\n", entry.Name())
					continue
				}
				info, err := entry.Info()
				if err != nil {
					fmt.Fprintf(&b, "%s\n", entry.Name())
					continue
				}
				fmt.Fprintf(&b, "%s (%d bytes)\n", entry.Name(), info.Size())
			}
			if b.Len() == 0 {
				return "(empty directory)", nil
			}
			return b.String(), nil
		},
	}
}

// resolveWorkspacePath joins rel onto workDir and rejects absolute paths and
// traversals that leave the workspace.
func resolveWorkspacePath(workDir, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %s must be relative to the workspace", rel)
	}
	full := filepath.Join(workDir, rel)
	back, err := filepath.Rel(workDir, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the workspace", rel)
	}
	return full, nil
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}
