package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuiltinNamesMatchRegistrations(t *testing.T) {
	workDir := t.TempDir()
	reg := NewRegistry()
	if err := RegisterBuiltins(reg, workDir); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}

	registered := reg.Names()
	declared := BuiltinNames()
	if len(registered) != len(declared) {
		t.Fatalf("declared %d builtins, registered %d", len(declared), len(registered))
	}
	for _, name := range declared {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("declared builtin %s is not registered", name)
		}
	}
}

func TestCurrentTimeTool(t *testing.T) {
	tool := currentTimeTool()

	out, err := tool.Fn(context.Background(), nil)
	if err != nil {
		t.Fatalf("current_time failed: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, out); err != nil {
		t.Errorf("output %q is not RFC 3339: %v", out, err)
	}
}

func TestCalculateTool(t *testing.T) {
	tool := calculateTool()

	tests := []struct {
		expr string
		want string
	}{
		{"2+3", "5"},
		{"(2+3)*4", "20"},
		{"10/4", "2.5"},
		{"-3 + 10", "7"},
		{"2 * (3 + 4) - 5", "9"},
	}
	for _, tt := range tests {
		out, err := tool.Fn(context.Background(), map[string]interface{}{"expression": tt.expr})
		if err != nil {
			t.Errorf("calculate(%q) failed: %v", tt.expr, err)
			continue
		}
		if out != tt.want {
			t.Errorf("calculate(%q) = %s, want %s", tt.expr, out, tt.want)
		}
	}
}

func TestCalculateToolErrors(t *testing.T) {
	tool := calculateTool()

	bad := []string{"", "2+", "1/0", "2 2", "(1+2", "abc"}
	for _, expr := range bad {
		if _, err := tool.Fn(context.Background(), map[string]interface{}{"expression": expr}); err == nil {
			t.Errorf("calculate(%q) should fail", expr)
		}
	}

	if _, err := tool.Fn(context.Background(), nil); err == nil {
		t.Error("missing expression argument should fail")
	}
}

func TestReadFileTool(t *testing.T) {
	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workDir, "notes.txt"), []byte("remember the milk"), 0644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	tool := readFileTool(workDir)

	out, err := tool.Fn(context.Background(), map[string]interface{}{"path": "notes.txt"})
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if out != "remember the milk" {
		t.Errorf("unexpected content %q", out)
	}
}

func TestReadFileToolRejectsEscapes(t *testing.T) {
	tool := readFileTool(t.TempDir())

	for _, path := range []string{"../outside.txt", "a/../../outside.txt", "/etc/hostname"} {
		if _, err := tool.Fn(context.Background(), map[string]interface{}{"path": path}); err == nil {
			t.Errorf("path %q should be rejected", path)
		}
	}
}

func TestReadFileToolSizeCap(t *testing.T) {
	workDir := t.TempDir()
	big := strings.Repeat("a", maxReadBytes+1)
	if err := os.WriteFile(filepath.Join(workDir, "big.txt"), []byte(big), 0644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	tool := readFileTool(workDir)

	if _, err := tool.Fn(context.Background(), map[string]interface{}{"path": "big.txt"}); err == nil {
		t.Error("oversized file should be rejected")
	}
}

func TestListDirTool(t *testing.T) {
	workDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workDir, "sub"), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("aa"), 0644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	tool := listDirTool(workDir)

	out, err := tool.Fn(context.Background(), nil)
	if err != nil {
		t.Fatalf("list_dir failed: %v", err)
	}
	if !strings.Contains(out, "sub/") {
		t.Errorf("expected directory marker in %q", out)
	}
	if !strings.Contains(out, "a.txt (2 bytes)") {
		t.Errorf("expected file size in %q", out)
	}

	empty, err := tool.Fn(context.Background(), map[string]interface{}{"path": "sub"})
	if err != nil {
		t.Fatalf("list_dir sub failed: %v", err)
	}
	if empty != "(empty directory)" {
		t.Errorf("expected empty marker, got %q", empty)
	}
}
