package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/larvling/internal/config"
)

// DefaultClaudeModel is used when no model is configured.
const DefaultClaudeModel = "claude-sonnet-4-6"

// ClaudeCLI calls the model through the local claude binary in print mode.
type ClaudeCLI struct {
	Binary   string
	Model    string
	Timeout  time.Duration
	MaxTurns int
}

// NewClaudeCLI builds a ClaudeCLI from config.
func NewClaudeCLI(cfg config.LLMConfig) *ClaudeCLI {
	c := &ClaudeCLI{
		Binary:   "claude",
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
		MaxTurns: cfg.MaxTurns,
	}
	if c.Model == "" {
		c.Model = DefaultClaudeModel
	}
	return c
}

// Args returns the command-line arguments for req. The prompt is passed on
// stdin.
func (c *ClaudeCLI) Args(req Request) ([]string, error) {
	args := []string{"-p", "--output-format", "stream-json", "--verbose", "--model", c.Model}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	turns := req.MaxTurns
	if turns == 0 {
		turns = c.MaxTurns
	}
	if turns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(turns))
	}
	if req.Schema != nil {
		b, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("encoding schema: %w", err)
		}
		args = append(args, "--json-schema", string(b))
	}
	return args, nil
}

// Call runs the CLI and parses its stream output.
func (c *ClaudeCLI) Call(ctx context.Context, req Request) (*Response, error) {
	args, err := c.Args(req)
	if err != nil {
		return nil, err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.Env = ChildEnv(os.Environ())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	resp, parseErr := ParseStream(&stdout, req.Schema != nil)
	if runErr != nil && (parseErr != nil || resp == nil) {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("running %s: %w", c.Binary, runErr)
		}
		return nil, fmt.Errorf("running %s: %w: %s", c.Binary, runErr, msg)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return resp, nil
}

// ChildEnv returns env with the internal marker set and CLAUDECODE removed,
// so the child neither fires larvling hooks nor trips the nested-session
// guard.
func ChildEnv(env []string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE=") || strings.HasPrefix(kv, InternalEnv+"=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, InternalEnv+"=1")
}
