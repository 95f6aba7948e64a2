package modules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBuilder(t *testing.T) {
	r, _ := newRun(t)
	require.NoError(t, r.Set("modname", "pkgx"))
	tmp := t.TempDir()
	gone := writeFile(t, filepath.Join(tmp, "should-not-exist"), "x", 0o644)

	restarts := 0
	h := pkg.NewHandler("restart app", func(r *pkg.Run) error {
		restarts++
		return nil
	})
	require.NoError(t, r.Handlers.Define(h))

	items := []Item{
		{"path": tmp + "/{{ modname }}", "action": "directory"},
		{"path": tmp + "/{{ modname }}/__init__.py", "action": "exists"},
		{"path": tmp + "/{{ modname }}/{{ conf }}", "conf": "app.conf", "state": "exists", "notify": "restart app"},
		{"path": gone, "action": "absent"},
	}
	defaults := Item{"mode": "a=rX,u+w"}

	res, err := Builder(r, items, defaults)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.DirExists(t, filepath.Join(tmp, "pkgx"))
	assert.FileExists(t, filepath.Join(tmp, "pkgx", "__init__.py"))
	assert.FileExists(t, filepath.Join(tmp, "pkgx", "app.conf"))
	assert.NoFileExists(t, gone)
	assert.Equal(t, os.FileMode(0o755), permOf(t, filepath.Join(tmp, "pkgx")))
	assert.Equal(t, os.FileMode(0o644), permOf(t, filepath.Join(tmp, "pkgx", "app.conf")))
	assert.Equal(t, []*pkg.Handler{h}, r.Handlers.Pending())

	require.NoError(t, r.FlushHandlers())
	assert.Equal(t, 1, restarts)

	res, err = Builder(r, items, defaults)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 0, r.Handlers.Len())

	_, found := r.Lookup("conf")
	assert.False(t, found, "item attributes are scoped to the item")
}

func TestBuilderItemOverridesDefaults(t *testing.T) {
	r, _ := newRun(t)
	tmp := t.TempDir()

	_, err := Builder(r, []Item{
		{"path": tmp + "/open"},
		{"path": tmp + "/closed", "mode": 0o600},
	}, Item{"action": "exists", "mode": "0644"})
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), permOf(t, tmp+"/open"))
	assert.Equal(t, os.FileMode(0o600), permOf(t, tmp+"/closed"))
}

func TestBuilderNotifiesHandlerValue(t *testing.T) {
	r, _ := newRun(t)
	h := pkg.NewHandler("anonymous", nil)

	_, err := Builder(r, []Item{{"path": t.TempDir() + "/x", "action": "exists", "notify": h}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []*pkg.Handler{h}, r.Handlers.Pending())

	_, err = Fs(r, FsInput{Path: t.TempDir() + "/y", Action: "exists", Notify: "undefined handler"})
	assert.ErrorContains(t, err, `no handler named "undefined handler"`)
}

func TestFsCopyActions(t *testing.T) {
	r, _ := newRun(t)
	require.NoError(t, r.Set("v", "1"))
	tmp := t.TempDir()
	src := writeFile(t, filepath.Join(tmp, "src.j2"), "v={{ v }}", 0o644)

	_, err := Fs(r, FsInput{Path: tmp + "/templated", Src: src})
	require.NoError(t, err)
	assert.Equal(t, "v=1", readFile(t, tmp+"/templated"))

	_, err = Fs(r, FsInput{Path: tmp + "/copied", Src: src, Action: ActionCopy})
	require.NoError(t, err)
	assert.Equal(t, "v={{ v }}", readFile(t, tmp+"/copied"))

	res, err := Fs(r, FsInput{Path: tmp + "/link", Src: src, Action: ActionSymlink})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	_, err = Fs(r, FsInput{Path: tmp + "/x", Action: "explode"})
	assert.ErrorContains(t, err, "unknown action: explode")
}

func TestBuilderInputUnmarshalYAML(t *testing.T) {
	var in BuilderInput
	require.NoError(t, yaml.Unmarshal([]byte("- path: /a\n- path: /b\n  action: directory\n"), &in))
	assert.Len(t, in.Items, 2)
	assert.Equal(t, "directory", in.Items[1]["action"])

	in = BuilderInput{}
	require.NoError(t, yaml.Unmarshal([]byte("defaults:\n  mode: '0644'\nitems:\n  - path: /a\n"), &in))
	assert.Equal(t, "0644", in.Defaults["mode"])
	assert.Len(t, in.Items, 1)
}

func TestItem(t *testing.T) {
	item := Item{"path": "/a", "mode": 420, "recursive": true}.Merge(Item{"path": "/default", "owner": "root"})
	assert.Equal(t, []string{"mode", "owner", "path", "recursive"}, item.keys())

	s, err := item.String("recursive")
	require.NoError(t, err)
	assert.Equal(t, "true", s)
	s, err = item.String("missing")
	require.NoError(t, err)
	assert.Equal(t, "", s)

	item["bad"] = []string{"x"}
	_, err = item.String("bad")
	assert.Error(t, err)
}
