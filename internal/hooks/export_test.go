package hooks

import "context"

// SetWait replaces the transcript wait so tests need not sleep.
func (h *Hooks) SetWait(wait func(ctx context.Context, path string)) { h.wait = wait }
