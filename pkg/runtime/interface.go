package runtime

import "os"

// Host is the machine tasks change. Only the local one is implemented.
type Host interface {
	Run(command string, opts CommandOptions) (*CommandResult, error)
	Stat(path string, follow bool) (os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	CopyTree(src, dst string) error
}
