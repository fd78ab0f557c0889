package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/HendryAvila/larvling/internal/logging"
)

// DetachedFlag marks the background invocation of the analysis hook. It is
// followed by the path of the payload file.
const DetachedFlag = "--detached"

// Offloader moves slow work out of the hook process.
type Offloader interface {
	Offload(payload []byte) error
}

// DetachedProcess re-runs a larvling command as a detached child. The
// payload is handed over through a temp file named after a fresh uuid; the
// child deletes it once read.
type DetachedProcess struct {
	// Executable defaults to the running binary.
	Executable string
	// Args precede DetachedFlag, e.g. ["hook", "analyze"].
	Args []string
	// Dir holds the payload files; empty means os.TempDir.
	Dir string
	// WorkDir is the child's working directory; empty inherits ours.
	WorkDir string
}

// Offload writes payload to a temp file and starts the child in its own
// session with stdio detached. It does not wait for the child.
func (d *DetachedProcess) Offload(payload []byte) error {
	exe := d.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
	}
	dir := d.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, "larvling-"+uuid.NewString()+".json")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	args := append(append([]string{}, d.Args...), DetachedFlag, path)
	cmd := exec.Command(exe, args...)
	cmd.Dir = d.WorkDir
	cmd.SysProcAttr = detachedAttr()
	if err := cmd.Start(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("start detached %s: %w", exe, err)
	}
	return cmd.Process.Release()
}

// RunDetached is the child side of DetachedProcess: it reads and removes
// the payload file, then runs fn like Run does for stdin payloads.
func (h *Hooks) RunDetached(ctx context.Context, event, path string, fn HandlerFunc) {
	if Internal() {
		return
	}
	defer h.recoverPanic(event)
	if path == "" {
		h.logger.Warn("payload_error", "hook", event, "error", DetachedFlag+" missing path argument")
		return
	}
	raw, err := os.ReadFile(path)
	_ = os.Remove(path)
	if err != nil {
		h.logger.Warn("payload_error", "hook", event, "error", fmt.Sprintf("failed to read detached payload: %v", err))
		return
	}
	p, err := ParsePayload(raw)
	if err != nil || p == nil {
		return
	}
	if err := fn(ctx, p); err != nil {
		logging.ForSession(h.logger, p.SessionID).Error("hook_error", "hook", event, "error", err)
	}
}
