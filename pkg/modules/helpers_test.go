package modules

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/config"
	"github.com/stretchr/testify/require"
)

func newRun(t *testing.T, opts ...pkg.RunOption) (*pkg.Run, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return pkg.NewRun(config.Default(), append([]pkg.RunOption{pkg.WithOutput(&out)}, opts...)...), &out
}

func writeFile(t *testing.T, path, contents string, mode os.FileMode) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), mode))
	require.NoError(t, os.Chmod(path, mode))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func permOf(t *testing.T, path string) os.FileMode {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Mode().Perm()
}
