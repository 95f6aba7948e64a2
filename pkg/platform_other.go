//go:build unix && !linux

package pkg

import (
	"golang.org/x/sys/unix"
)

func addOSFacts(facts map[string]interface{}) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		facts["arch"] = unix.ByteSliceToString(uts.Machine[:])
		facts["release_version"] = unix.ByteSliceToString(uts.Release[:])
	}
}
