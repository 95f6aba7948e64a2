//go:build darwin

package modules

import (
	"syscall"
)

// assignTimestampsOSSpecific assigns Atime, Mtime, and Ctime to the StatDetails
// for Darwin (macOS), using the Atimespec, Mtimespec, and Ctimespec fields from syscall.Stat_t.
func assignTimestampsOSSpecific(details *StatDetails, sysStat *syscall.Stat_t) {
	details.Atime = timespecToFloat(sysStat.Atimespec)
	details.Mtime = timespecToFloat(sysStat.Mtimespec)
	details.Ctime = timespecToFloat(sysStat.Ctimespec)
}
