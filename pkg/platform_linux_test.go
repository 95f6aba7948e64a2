//go:build linux

package pkg

import (
	goruntime "runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPlatformArchIsMachineName(t *testing.T) {
	var uts unix.Utsname
	require.NoError(t, unix.Uname(&uts))

	facts := PlatformFacts()
	assert.Equal(t, unix.ByteSliceToString(uts.Machine[:]), facts["arch"])
	if goruntime.GOARCH == "amd64" {
		assert.Equal(t, "x86_64", facts["arch"])
	}
	assert.Equal(t, "Linux", facts["system"])
}
