package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg/config"
)

// FindFile locates a task source file. Absolute names are returned as is,
// relative names are looked up in every directory of filesPath, where "..."
// stands for the playbook directory.
func FindFile(name, filesPath, playbookDir string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	for _, dir := range strings.Split(filesPath, ":") {
		switch {
		case dir == "":
			continue
		case dir == "...":
			dir = playbookDir
		case strings.HasPrefix(dir, ".../"):
			dir = filepath.Join(playbookDir, dir[len(".../"):])
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not find file %s, searched in %s: %w", name, filesPath, os.ErrNotExist)
}

// FindFile resolves name against the configured files path and the
// directory of the running playbook.
func (r *Run) FindFile(name string) (string, error) {
	filesPath := config.DefaultFilesPath
	if r.Config != nil && r.Config.FilesPath != "" {
		filesPath = r.Config.FilesPath
	}
	return FindFile(name, filesPath, r.PlaybookDir())
}
