package modules

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMkdir(t *testing.T) {
	r, out := newRun(t)
	dir := filepath.Join(t.TempDir(), "a", "b")

	res, err := Mkdir(r, MkdirInput{Path: dir})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.DirExists(t, dir)

	res, err = Mkdir(r, MkdirInput{Path: dir})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, r.Recap.Changed)
	assert.Equal(t, "=> mkdir(path="+dir+")", outputLine(out, 0))

	_, err = Mkdir(r, MkdirInput{Path: filepath.Join(t.TempDir(), "x", "y"), Parents: boolPtr(false)})
	assert.Error(t, err)
}

func TestMkdirMode(t *testing.T) {
	r, out := newRun(t)
	dir := filepath.Join(t.TempDir(), "d")

	_, err := Mkdir(r, MkdirInput{Path: dir, Mode: "0750"})
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), permOf(t, dir))

	// An existing directory only gets its permissions fixed, as a nested task.
	out.Reset()
	res, err := Mkdir(r, MkdirInput{Path: dir, Mode: "a=rX,u+w"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, os.FileMode(0o755), permOf(t, dir))
	assert.True(t, strings.HasPrefix(outputLine(out, 0), "==> chmod("))

	res, err = Mkdir(r, MkdirInput{Path: dir, Mode: "0755"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestMkfile(t *testing.T) {
	r, _ := newRun(t)
	require.NoError(t, r.Set("name", "world"))
	path := filepath.Join(t.TempDir(), "f")

	res, err := Mkfile(r, MkfileInput{Path: path, Mode: "0600"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "", readFile(t, path))
	assert.Equal(t, os.FileMode(0o600), permOf(t, path))

	res, err = Mkfile(r, MkfileInput{Path: path})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	contents := "hello {{ name }}\n"
	res, err = Mkfile(r, MkfileInput{Path: path, Contents: &contents})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "hello world\n", readFile(t, path))
	assert.Equal(t, os.FileMode(0o600), permOf(t, path))

	res, err = Mkfile(r, MkfileInput{Path: path, Contents: &contents})
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestRm(t *testing.T) {
	r, _ := newRun(t)
	tmp := t.TempDir()
	file := writeFile(t, filepath.Join(tmp, "file"), "x", 0o644)
	dir := filepath.Join(tmp, "dir")
	writeFile(t, filepath.Join(dir, "inner"), "x", 0o644)

	res, err := Rm(r, RmInput{Path: file})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.NoFileExists(t, file)

	res, err = Rm(r, RmInput{Path: file})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	_, err = Rm(r, RmInput{Path: dir})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkg.ErrTaskFailure))
	assert.Contains(t, err.Error(), "will not remove without `recursive` option")
	assert.DirExists(t, dir)

	res, err = Rm(r, RmInput{Path: dir, Recursive: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.NoDirExists(t, dir)
}

func TestChmod(t *testing.T) {
	r, _ := newRun(t)
	tmp := t.TempDir()
	file := writeFile(t, filepath.Join(tmp, "file"), "x", 0o600)

	testCases := []struct {
		mode     string
		expected os.FileMode
		changed  bool
	}{
		{"a=rX,u+w", 0o644, true},
		{"0644", 0o644, false},
		{"u+x", 0o744, true},
		{"go-r", 0o700, true},
		{"a=rX,u+w", 0o755, true}, // X sticks once some execute bit is set
	}
	for _, tc := range testCases {
		res, err := Chmod(r, ChmodInput{Path: file, Mode: tc.mode})
		require.NoError(t, err, tc.mode)
		assert.Equal(t, tc.changed, res.Changed, tc.mode)
		assert.Equal(t, tc.expected, permOf(t, file), tc.mode)
	}

	res, err := Chmod(r, ChmodInput{Path: file, Mode: "0600"})
	require.NoError(t, err)
	assert.Equal(t, "Changed permissions: 755 -> 600", res.ExtraMessage)

	_, err = Chmod(r, ChmodInput{Path: file, Mode: "q+z"})
	assert.Error(t, err)

	dir := filepath.Join(tmp, "dir")
	require.NoError(t, os.Mkdir(dir, 0o700))
	_, err = Chmod(r, ChmodInput{Path: dir, Mode: "a=rX,u+w"})
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), permOf(t, dir))
}

func TestChownToCurrentOwner(t *testing.T) {
	r, _ := newRun(t)
	file := writeFile(t, filepath.Join(t.TempDir(), "file"), "x", 0o644)

	res, err := Chown(r, ChownInput{Path: file, User: strconv.Itoa(os.Getuid()), Group: strconv.Itoa(os.Getgid())})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	_, err = Chown(r, ChownInput{Path: file, User: "no-such-user-here"})
	assert.Error(t, err)
}

func TestMv(t *testing.T) {
	r, _ := newRun(t)
	tmp := t.TempDir()
	src := writeFile(t, filepath.Join(tmp, "src"), "data", 0o644)
	dst := filepath.Join(tmp, "dst")

	res, err := Mv(r, MvInput{Path: dst, Src: src})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "data", readFile(t, dst))

	res, err = Mv(r, MvInput{Path: dst, Src: src})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	_, err = Mv(r, MvInput{Path: filepath.Join(tmp, "nope"), Src: filepath.Join(tmp, "gone")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No file to move")

	into := filepath.Join(tmp, "into")
	require.NoError(t, os.Mkdir(into, 0o755))
	_, err = Mv(r, MvInput{Path: into, Src: dst})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(into, "dst"))
}

func TestLn(t *testing.T) {
	r, _ := newRun(t)
	tmp := t.TempDir()
	src := writeFile(t, filepath.Join(tmp, "target"), "data", 0o644)
	link := filepath.Join(tmp, "link")

	res, err := Ln(r, LnInput{Path: link, Src: src, Symbolic: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, src, target)

	res, err = Ln(r, LnInput{Path: link, Src: src, Symbolic: true})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	hard := filepath.Join(tmp, "hard")
	res, err = Ln(r, LnInput{Path: hard, Src: src})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	res, err = Ln(r, LnInput{Path: hard, Src: src})
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestExists(t *testing.T) {
	r, out := newRun(t)
	file := writeFile(t, filepath.Join(t.TempDir(), "file"), "x", 0o644)

	res, err := Exists(r, file)
	require.NoError(t, err)
	assert.True(t, res.OK())

	res, err = Exists(r, file+".missing")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Contains(t, outputLine(out, 1), "(failure ignored)")
	assert.False(t, r.Recap.Fatal())

	_, err = invoke(r, "fs.exists", ExistsInput{Path: file + ".missing", IgnoreFailure: boolPtr(false)}, nil)
	assert.Error(t, err)
}

func outputLine(out interface{ String() string }, n int) string {
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if n >= len(lines) {
		return ""
	}
	return lines[n]
}
