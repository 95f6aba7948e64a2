//go:build linux

package modules

import (
	"fmt"
	"syscall"
)

// seteuid switches the effective uid of every thread of the process and
// returns a function switching back.
func seteuid(uid int) (func() error, error) {
	old := syscall.Geteuid()
	if old == uid {
		return func() error { return nil }, nil
	}
	if err := syscall.Seteuid(uid); err != nil {
		return nil, fmt.Errorf("failed to switch to uid %d: %w", uid, err)
	}
	return func() error {
		if err := syscall.Seteuid(old); err != nil {
			return fmt.Errorf("failed to switch back to uid %d: %w", old, err)
		}
		return nil
	}, nil
}
