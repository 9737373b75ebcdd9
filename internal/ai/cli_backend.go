package ai

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"supportwatch/internal/config"
)

const (
	cliWaitDelay     = 2 * time.Second
	cliStderrExcerpt = 512
)

// CLIBackend drives a vendor CLI as a subprocess. The prompt goes to stdin and
// the completion is read from stdout. Authentication is the CLI's own OAuth
// login stored under its HOME.
type CLIBackend struct {
	command string
	args    []string
	home    string
}

// NewCLIBackend creates the subprocess backend
func NewCLIBackend(cfg *config.Config) (*CLIBackend, error) {
	if cfg.AICLICommand == "" {
		return nil, fmt.Errorf("cli backend requires AI_CLI_COMMAND")
	}
	return &CLIBackend{
		command: cfg.AICLICommand,
		args:    cfg.AICLIArgs,
		home:    cfg.AICLIHome,
	}, nil
}

// Type returns the backend variant
func (b *CLIBackend) Type() BackendType {
	return BackendCLI
}

// EmbeddingFamily is empty, the CLI cannot embed
func (b *CLIBackend) EmbeddingFamily() string {
	return ""
}

// Embed is not available through the CLI
func (b *CLIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: cli backend cannot embed", ErrUnsupported)
}

// Complete runs the CLI once. Cancelling ctx kills the whole process group.
func (b *CLIBackend) Complete(ctx context.Context, prompt Prompt) (string, error) {
	cmd := exec.CommandContext(ctx, b.command, b.args...)
	cmd.Stdin = strings.NewReader(prompt.System + "\n\n" + prompt.User)
	if b.home != "" {
		cmd.Env = append(os.Environ(), "HOME="+b.home)
	}

	setProcGroup(cmd)
	cmd.Cancel = func() error { return killProcGroup(cmd) }
	cmd.WaitDelay = cliWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("cli exited: %w (stderr: %s)", err, excerpt(stderr.String()))
	}

	return unwrapCLIEnvelope(stdout.String()), nil
}

// unwrapCLIEnvelope returns the completion text when the CLI prints a JSON
// envelope such as {"result": "..."}; other output is returned unchanged.
func unwrapCLIEnvelope(out string) string {
	trimmed := strings.TrimSpace(out)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return trimmed
	}
	for _, key := range []string{"result", "response", "content"} {
		if text, ok := envelope[key].(string); ok {
			return text
		}
	}
	return trimmed
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > cliStderrExcerpt {
		return s[:cliStderrExcerpt] + "..."
	}
	return s
}
