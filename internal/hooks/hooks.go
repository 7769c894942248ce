package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/meshwiz/internal/logger"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up in the working directory of a submission.
const ConfigFileName = ".meshwiz.hooks.yml"

var log = logger.With("hooks")

// ErrRequiredFailed is returned when a hook marked required fails or times
// out.
var ErrRequiredFailed = errors.New("required hook failed")

// LoadConfig reads ConfigFileName from workDir. A missing file means no
// hooks and returns nil without error.
func LoadConfig(workDir string) (*Config, error) {
	path := filepath.Join(workDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("no hooks file at %s", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hooks config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hooks config: %w", err)
	}
	log.Debug("loaded %s: %d pre_submit, %d post_submit", path, len(cfg.Hooks.PreSubmit), len(cfg.Hooks.PostSubmit))
	return &cfg, nil
}

// Variables describe the submission a hook runs for. They are expanded in
// {{name}} form in the command and exported as MESHWIZ_* variables.
type Variables struct {
	Namespace string
	Service   string
	Wizard    string
	Session   string
	// Result is "success" or "failure" for post_submit hooks.
	Result string
	// Documents is the YAML written by the submission, fed to hooks with
	// stdin set.
	Documents []byte
}

func (v Variables) pairs() [][2]string {
	return [][2]string{
		{"namespace", v.Namespace},
		{"service", v.Service},
		{"wizard", v.Wizard},
		{"session", v.Session},
		{"result", v.Result},
	}
}

func (v Variables) expand(command string) string {
	for _, p := range v.pairs() {
		command = strings.ReplaceAll(command, "{{"+p[0]+"}}", p[1])
	}
	return command
}

func (v Variables) environ() []string {
	env := os.Environ()
	for _, p := range v.pairs() {
		env = append(env, "MESHWIZ_"+strings.ToUpper(p[0])+"="+p[1])
	}
	return env
}

// Execute runs one hook and returns its output. A failing or timed out hook
// is reported in the output and does not fail the submission, unless it is
// required. Cancellation of ctx is always returned.
func Execute(ctx context.Context, hook *HookConfig, workDir string, vars Variables) (string, error) {
	if hook == nil || hook.Command == "" {
		return "", nil
	}

	command := vars.expand(hook.Command)
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = workDir
	cmd.Env = vars.environ()
	if hook.Stdin {
		cmd.Stdin = bytes.NewReader(vars.Documents)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("running hook: %s", command)
	err := cmd.Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n[stderr]\n" + stderr.String()
	}

	var failure string
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		failure = fmt.Sprintf("[Hook timed out after %ds]\nPartial output:\n%s", timeout, stdout.String())
	case err != nil:
		failure = fmt.Sprintf("[Hook command failed: %v]\n%s", err, output)
	default:
		return output, nil
	}

	log.Warn("hook %q failed: %s", command, strings.SplitN(failure, "\n", 2)[0])
	if hook.Required {
		return failure, fmt.Errorf("%w: %s", ErrRequiredFailed, command)
	}
	return failure, nil
}

// ExecuteAll runs hooks in order and joins the output of those with
// pipe_output set. It stops at the first required hook that fails and
// returns what was collected so far with that hook's output.
func ExecuteAll(ctx context.Context, hooks []*HookConfig, workDir string, vars Variables) (string, error) {
	var piped []string
	for _, hook := range hooks {
		output, err := Execute(ctx, hook, workDir, vars)
		if hook.PipeOutput || errors.Is(err, ErrRequiredFailed) {
			piped = append(piped, output)
		}
		if err != nil {
			return strings.Join(piped, "\n"), err
		}
	}
	return strings.Join(piped, "\n"), nil
}
