package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/HendryAvila/larvling/internal/llm"
)

// Payload is the JSON object the agent writes to a hook's stdin. Only the
// fields larvling reads are decoded; Raw keeps the original bytes.
type Payload struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	PermissionMode string `json:"permission_mode"`
	HookEventName  string `json:"hook_event_name"`
	Prompt         string `json:"prompt"`
	StopHookActive bool   `json:"stop_hook_active"`
	Matcher        string `json:"matcher"`
	Source         string `json:"source"`
	Reason         string `json:"reason"`

	Raw []byte `json:"-"`
}

// Trigger returns what started the session ("startup", "resume",
// "compact", ...). It defaults to "startup".
func (p *Payload) Trigger() string {
	switch {
	case p.Matcher != "":
		return p.Matcher
	case p.Source != "":
		return p.Source
	}
	return "startup"
}

// PayloadError reports a payload that is not a JSON object.
type PayloadError struct {
	Size int
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid hook payload (%d bytes): %v", e.Size, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// ReadPayload reads and decodes a payload. Blank input yields (nil, nil).
func ReadPayload(r io.Reader) (*Payload, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return ParsePayload(raw)
}

// ParsePayload decodes raw. Blank input yields (nil, nil); anything that is
// not a JSON object is a *PayloadError.
func ParsePayload(raw []byte) (*Payload, error) {
	if strings.TrimSpace(string(raw)) == "" {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &PayloadError{Size: len(raw), Err: err}
	}
	p.Raw = raw
	return &p, nil
}

// Internal reports whether this process was started by larvling's own
// model call, in which case every hook is a no-op.
func Internal() bool {
	return os.Getenv(llm.InternalEnv) != ""
}

var (
	ideTags = regexp.MustCompile(
		`^(?s)(?:<ide_(?:opened_file|selection)>.*?</ide_(?:opened_file|selection)>\s*)+`)
	commandTag  = regexp.MustCompile(`<command-(?:message|name)>\s*/?(.+?)\s*</command-(?:message|name)>`)
	slashPrompt = regexp.MustCompile(`^/([\w:/-]+)$`)
)

// StripIDETags removes the leading opened-file and selection tags some
// editors prepend to prompts, then trims.
func StripIDETags(text string) string {
	return strings.TrimSpace(ideTags.ReplaceAllString(text, ""))
}

// DetectSkill returns the "/name" of a skill or command invocation, either
// a bare slash command or the command tags the agent wraps them in.
func DetectSkill(prompt string) (string, bool) {
	if m := commandTag.FindStringSubmatch(prompt); m != nil {
		return "/" + m[1], true
	}
	if m := slashPrompt.FindStringSubmatch(strings.TrimSpace(prompt)); m != nil {
		return "/" + m[1], true
	}
	return "", false
}
