//go:build linux

package pkg

import (
	"os"

	"golang.org/x/sys/unix"
)

func addOSFacts(facts map[string]interface{}) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		facts["arch"] = unix.ByteSliceToString(uts.Machine[:])
		facts["kernel"] = unix.ByteSliceToString(uts.Release[:])
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		unit := uint64(info.Unit)
		total := uint64(info.Totalram) * unit
		available := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
		facts["memory_total"] = total
		facts["memory_available"] = available
		facts["memory_used"] = total - available
		if total > 0 {
			facts["memory_percent_used"] = float64(total-available) * 100 / float64(total)
		}
	}

	for _, path := range []string{"/etc/os-release", "/usr/lib/os-release"} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		release := parseOSRelease(string(data))
		facts["release_name"] = release["NAME"]
		facts["release_id"] = release["ID"]
		facts["release_version"] = release["VERSION_ID"]
		facts["release_like"] = release["ID_LIKE"]
		facts["release_codename"] = release["VERSION_CODENAME"]
		break
	}
}
