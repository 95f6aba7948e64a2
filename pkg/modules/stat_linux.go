//go:build linux

package modules

import (
	"syscall"
)

// assignTimestampsOSSpecific assigns Atime, Mtime, and Ctime to the StatDetails
// for Linux, using the Atim, Mtim, and Ctim fields from syscall.Stat_t.
func assignTimestampsOSSpecific(details *StatDetails, sysStat *syscall.Stat_t) {
	details.Atime = timespecToFloat(sysStat.Atim)
	details.Mtime = timespecToFloat(sysStat.Mtim)
	details.Ctime = timespecToFloat(sysStat.Ctim)
}
