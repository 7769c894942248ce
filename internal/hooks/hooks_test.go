package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecuteAll(t *testing.T) {
	ctx := context.Background()
	workDir := t.TempDir()
	vars := Variables{Namespace: "bookinfo", Service: "reviews"}

	tests := []struct {
		name     string
		hooks    []*HookConfig
		expected string
	}{
		{
			name:     "no hooks",
			hooks:    []*HookConfig{},
			expected: "",
		},
		{
			name: "single hook with pipe_output true",
			hooks: []*HookConfig{
				{Command: "echo 'piped'", Timeout: 5, PipeOutput: true},
			},
			expected: "piped\n",
		},
		{
			name: "single hook with pipe_output false",
			hooks: []*HookConfig{
				{Command: "echo 'not piped'", Timeout: 5},
			},
			expected: "",
		},
		{
			name: "multiple hooks mixed pipe_output",
			hooks: []*HookConfig{
				{Command: "echo 'first piped'", Timeout: 5, PipeOutput: true},
				{Command: "echo 'not piped'", Timeout: 5},
				{Command: "echo 'second piped'", Timeout: 5, PipeOutput: true},
			},
			expected: "first piped\n\nsecond piped\n",
		},
		{
			name: "variables expanded",
			hooks: []*HookConfig{
				{Command: "echo '{{namespace}}/{{service}}'", Timeout: 5, PipeOutput: true},
			},
			expected: "bookinfo/reviews\n",
		},
		{
			name: "variables exported to the environment",
			hooks: []*HookConfig{
				{Command: "echo $MESHWIZ_SERVICE", Timeout: 5, PipeOutput: true},
			},
			expected: "reviews\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := ExecuteAll(ctx, tt.hooks, workDir, vars)
			if err != nil {
				t.Fatalf("ExecuteAll() error = %v", err)
			}
			if output != tt.expected {
				t.Errorf("ExecuteAll() output = %q, expected %q", output, tt.expected)
			}
		})
	}
}

func TestExecuteFailureDegrades(t *testing.T) {
	output, err := Execute(context.Background(), &HookConfig{Command: "echo oops >&2; exit 3", Timeout: 5}, t.TempDir(), Variables{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(output, "[Hook command failed") || !strings.Contains(output, "oops") {
		t.Errorf("unexpected output %q", output)
	}
}

func TestExecuteStdin(t *testing.T) {
	vars := Variables{Documents: []byte("kind: DestinationRule\n---\nkind: VirtualService\n")}
	output, err := Execute(context.Background(), &HookConfig{Command: "grep -c '^kind:'", Timeout: 5, Stdin: true}, t.TempDir(), vars)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if output != "2\n" {
		t.Errorf("output = %q, expected %q", output, "2\n")
	}
}

func TestExecuteAll_RequiredFailureStops(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	hooks := []*HookConfig{
		{Command: "echo checked", Timeout: 5, PipeOutput: true},
		{Command: "echo 'not allowed in {{namespace}}'; exit 1", Timeout: 5, Required: true},
		{Command: "touch " + marker, Timeout: 5},
	}

	output, err := ExecuteAll(context.Background(), hooks, t.TempDir(), Variables{Namespace: "bookinfo"})
	if !errors.Is(err, ErrRequiredFailed) {
		t.Fatalf("expected ErrRequiredFailed, got %v", err)
	}
	if !strings.Contains(output, "checked") || !strings.Contains(output, "not allowed in bookinfo") {
		t.Errorf("unexpected output %q", output)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("hooks after a failed required hook should not run")
	}
}

func TestExecuteTimeout(t *testing.T) {
	output, err := Execute(context.Background(), &HookConfig{Command: "sleep 5", Timeout: 1}, t.TempDir(), Variables{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(output, "[Hook timed out after 1s]") {
		t.Errorf("unexpected output %q", output)
	}
}

func TestExecuteAll_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	hooks := []*HookConfig{
		{Command: "echo 'test'", Timeout: 5, PipeOutput: true},
	}

	_, err := ExecuteAll(ctx, hooks, t.TempDir(), Variables{})
	if err == nil {
		t.Error("ExecuteAll() expected error for cancelled context, got nil")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file: cfg=%v err=%v", cfg, err)
	}

	content := `version: 1
hooks:
  pre_submit:
    - command: "kubectl auth can-i create virtualservices -n {{namespace}}"
      timeout: 10
  post_submit:
    - command: "echo {{result}}"
      pipe_output: true
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Hooks.PreSubmit) != 1 || cfg.Hooks.PreSubmit[0].Timeout != 10 {
		t.Errorf("pre_submit = %+v", cfg.Hooks.PreSubmit)
	}
	if len(cfg.Hooks.PostSubmit) != 1 || !cfg.Hooks.PostSubmit[0].PipeOutput {
		t.Errorf("post_submit = %+v", cfg.Hooks.PostSubmit)
	}

	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("hooks: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(dir); err == nil {
		t.Error("expected parse error")
	}
}
