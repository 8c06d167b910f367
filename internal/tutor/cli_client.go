package tutor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ErrCLINotFound is returned when the configured CLI binary is not on PATH.
var ErrCLINotFound = errors.New("tutor CLI not found")

// CLIClient answers doubts through a locally installed model CLI, one
// process per doubt. The prompt goes in on stdin.
type CLIClient struct {
	cliPath string
	timeout time.Duration
}

func NewCLIClient(cliPath string) *CLIClient {
	return &CLIClient{cliPath: cliPath, timeout: 90 * time.Second}
}

func (c *CLIClient) args(systemPrompt string) []string {
	return []string{
		"--print",
		"--output-format", "text",
		"--system-prompt", systemPrompt,
		"--max-turns", "1",
	}
}

func (c *CLIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	path, err := exec.LookPath(c.cliPath)
	if err != nil {
		return nil, errors.Wrapf(ErrCLINotFound, "%s", c.cliPath)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, c.args(systemPrompt)...)
	cmd.Stdin = strings.NewReader(userPrompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "tutor CLI after %v", time.Since(start).Round(time.Millisecond))
		}
		return nil, errors.Wrapf(err, "tutor CLI: %s", strings.TrimSpace(stderr.String()))
	}
	glog.V(2).Infof("[tutor] CLI answered in %v", time.Since(start).Round(time.Millisecond))

	answer := strings.TrimSpace(stdout.String())
	if answer == "" {
		return nil, errors.New("tutor CLI returned no answer")
	}
	// The CLI reports no usage; a rough four-characters-per-token estimate
	// keeps the response shape the same as the API client's.
	return &LLMResponse{
		Content:      answer,
		PromptTokens: len(systemPrompt+userPrompt) / 4,
		OutputTokens: len(answer) / 4,
	}, nil
}
