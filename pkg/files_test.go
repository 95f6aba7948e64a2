package pkg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFile(t *testing.T) {
	pbDir := t.TempDir()
	other := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(pbDir, "files"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pbDir, "files", "motd.j2"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pbDir, "top.j2"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(other, "motd.j2"), []byte("other"), 0o644))

	testCases := []struct {
		name      string
		file      string
		filesPath string
		expected  string
	}{
		{"playbook subdir", "motd.j2", "...:.../files", filepath.Join(pbDir, "files", "motd.j2")},
		{"playbook dir wins", "top.j2", "...:.../files", filepath.Join(pbDir, "top.j2")},
		{"first match wins", "motd.j2", other + ":.../files", filepath.Join(other, "motd.j2")},
		{"absolute", "/etc/hosts", "...", "/etc/hosts"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			found, err := FindFile(tc.file, tc.filesPath, pbDir)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, found)
		})
	}

	_, err := FindFile("missing.j2", "...:.../files", pbDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunFindFileUsesPlaybookDir(t *testing.T) {
	pbDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pbDir, "app.conf.j2"), []byte("x"), 0o644))

	r, _ := newTestRun(t, WithPlaybook(&Playbook{Name: "app", Directory: pbDir}))
	found, err := r.FindFile("app.conf.j2")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(pbDir, "app.conf.j2"), found)
}
