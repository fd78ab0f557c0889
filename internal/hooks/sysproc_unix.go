//go:build !windows

package hooks

import "syscall"

// detachedAttr starts the child in a new session so it outlives the hook.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
