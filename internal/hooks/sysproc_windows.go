//go:build windows

package hooks

import "syscall"

const createNoWindow = 0x08000000

func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: createNoWindow}
}
