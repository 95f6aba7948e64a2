package pkg

import (
	"os"
	goruntime "runtime"
	"strings"
	"sync"
)

var (
	platformOnce  sync.Once
	platformFacts map[string]interface{}
)

// PlatformFacts describes the machine the run executes on. It is computed
// once per process and shared read-only by every run. arch is the machine
// name reported by uname, such as x86_64 or aarch64, and falls back to the Go
// architecture where uname is unavailable.
func PlatformFacts() map[string]interface{} {
	platformOnce.Do(func() {
		facts := map[string]interface{}{
			"system":    systemName(goruntime.GOOS),
			"arch":      goruntime.GOARCH,
			"cpu_count": goruntime.NumCPU(),
		}
		if host, err := os.Hostname(); err == nil {
			facts["fqdn"] = host
		}
		addOSFacts(facts)
		platformFacts = facts
	})
	return platformFacts
}

func systemName(goos string) string {
	switch goos {
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	}
	if goos == "" {
		return ""
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}

// parseOSRelease reads KEY=value lines as found in /etc/os-release.
func parseOSRelease(data string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = strings.Trim(v, `"'`)
	}
	return out
}
