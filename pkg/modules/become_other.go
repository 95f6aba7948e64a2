//go:build !linux

package modules

import "fmt"

func seteuid(uid int) (func() error, error) {
	return nil, fmt.Errorf("become is only supported on linux")
}
