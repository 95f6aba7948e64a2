package playbook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlaybook(t *testing.T, path, contents string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestSearchPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(home, "playbooks"), "/srv/pb", "."}, SearchPaths("~/playbooks: :/srv/pb:."))
	assert.Empty(t, SearchPaths(""))
}

func TestList(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writePlaybook(t, filepath.Join(first, "b.pb"), "[]")
	writePlaybook(t, filepath.Join(first, "a.pb"), "[]")
	writePlaybook(t, filepath.Join(first, "site", "playbook"), "[]")
	writePlaybook(t, filepath.Join(first, "notes.txt"), "not a playbook")
	require.NoError(t, os.MkdirAll(filepath.Join(first, "empty"), 0o755))
	writePlaybook(t, filepath.Join(second, "a.pb"), "[]")

	playbooks, err := List(first + ":" + second)
	require.NoError(t, err)

	var names, dirs []string
	for _, pb := range playbooks {
		names = append(names, pb.Name)
		dirs = append(dirs, pb.Directory)
	}
	assert.Equal(t, []string{"a.pb", "b.pb", "site", "a.pb"}, names)
	assert.Equal(t, []string{first, first, filepath.Join(first, "site"), second}, dirs)
}

func TestFind(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writePlaybook(t, filepath.Join(first, "deploy.pb"), "[]")
	writePlaybook(t, filepath.Join(second, "deploy.pb"), "[]")
	writePlaybook(t, filepath.Join(second, "site", "playbook"), "[]")
	path := first + ":" + second

	testCases := []struct {
		name string
		file string
		as   string
	}{
		{"without extension", filepath.Join(first, "deploy.pb"), "deploy"},
		{"with extension", filepath.Join(first, "deploy.pb"), "deploy.pb"},
		{"directory playbook", filepath.Join(second, "site", "playbook"), "site"},
		{"path to file", filepath.Join(second, "deploy.pb"), filepath.Join(second, "deploy.pb")},
		{"path to directory", filepath.Join(second, "site", "playbook"), filepath.Join(second, "site")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := Find(tc.as, path)
			require.NoError(t, err)
			assert.Equal(t, tc.file, info.File)
			assert.Equal(t, filepath.Dir(tc.file), info.Directory)
		})
	}

	info, err := Find(filepath.Join(second, "site"), path)
	require.NoError(t, err)
	assert.Equal(t, "site", info.Name)

	_, err = Find("missing", path)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorContains(t, err, "unable to locate a playbook by the name of missing")

	_, err = Find(filepath.Join(first, "missing.pb"), path)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, os.MkdirAll(filepath.Join(first, "bare"), 0o755))
	_, err = Find(filepath.Join(first, "bare"), path)
	assert.ErrorContains(t, err, "has no playbook file")
}

func TestDescribe(t *testing.T) {
	dir := t.TempDir()
	described := writePlaybook(t, filepath.Join(dir, "described.pb"), `
description: |
  Set up a web site.
  It also restarts the web server.
steps: []
`)
	plain := writePlaybook(t, filepath.Join(dir, "plain.pb"), "- exit: 0\n")

	assert.Equal(t, "Set up a web site.", Describe(described))
	assert.Equal(t, "", Describe(plain))
	assert.Equal(t, "", Describe(filepath.Join(dir, "missing.pb")))
}
