package modules

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"strconv"
	"syscall"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"github.com/AlexanderGrooff/uplaybook/pkg/runtime"
)

// creationMode is the permission a new file or directory is created with:
// mode applied on top of nothing, or def when no mode is given.
func creationMode(mode string, isDir bool, def os.FileMode) (os.FileMode, error) {
	if mode == "" {
		return def, nil
	}
	return runtime.ParseFileMode(mode, 0, isDir)
}

// chmodNested runs fs.chmod one level below the calling task so the change
// shows up as its own status line.
func chmodNested(c *pkg.Closure, path, mode string, isDir *bool) (bool, error) {
	if mode == "" {
		return false, nil
	}
	res, err := c.Run.Invoke("fs.chmod", ChmodInput{Path: path, Mode: mode, IsDirectory: isDir}, pkg.RawArgs("path", "mode"))
	if err != nil {
		return false, err
	}
	return res.Changed, nil
}

// MkdirModule implements fs.mkdir.
type MkdirModule struct{}

func (m MkdirModule) InputType() reflect.Type {
	return reflect.TypeOf(MkdirInput{})
}

func (m MkdirModule) Doc() string {
	return `Create a directory. Parent directories are created as needed unless parents is false.

## Examples

` + "```yaml" + `
- task: fs.mkdir
  path: /tmp/foo
- task: fs.mkdir
  path: /tmp/bar
  mode: a=rX,u+w
- task: fs.mkdir
  path: /tmp/baz/qux
  mode: "0755"
` + "```" + `
`
}

func (m MkdirModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"path":    {Description: "Directory to create. Templated.", Required: &required},
		"mode":    {Description: "Permissions, octal or symbolic. Templated.", Required: &notRequired},
		"parents": {Description: "Create missing parent directories.", Required: &notRequired, Default: "true"},
	}
}

// MkdirInput defines the parameters for fs.mkdir.
type MkdirInput struct {
	Path    string `yaml:"path" up:"template"`
	Mode    string `yaml:"mode,omitempty" up:"template"`
	Parents *bool  `yaml:"parents,omitempty"`
}

func (i MkdirInput) Validate() error {
	return requireField("path", i.Path)
}

func (m MkdirModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(MkdirInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected MkdirInput, got %T", params)
	}

	if pathExists(p.Path) {
		changed, err := chmodNested(c, p.Path, p.Mode, boolPtr(true))
		if err != nil {
			return &pkg.Result{}, err
		}
		return pkg.Changed(changed), nil
	}

	perm, err := creationMode(p.Mode, true, 0777)
	if err != nil {
		return &pkg.Result{}, err
	}
	if boolOr(p.Parents, true) {
		err = os.MkdirAll(p.Path, perm)
	} else {
		err = os.Mkdir(p.Path, perm)
	}
	if err != nil {
		return &pkg.Result{}, err
	}
	if p.Mode != "" {
		// The umask must not weaken an explicit mode.
		if err := os.Chmod(p.Path, perm); err != nil {
			return &pkg.Result{}, err
		}
	}
	return pkg.Changed(true), nil
}

// MkfileModule implements fs.mkfile.
type MkfileModule struct{}

func (m MkfileModule) InputType() reflect.Type {
	return reflect.TypeOf(MkfileInput{})
}

func (m MkfileModule) Doc() string {
	return `Create a file if it does not exist yet. When contents is given the file is made to hold exactly that.

## Examples

` + "```yaml" + `
- task: fs.mkfile
  path: /tmp/foo
- task: fs.mkfile
  path: /tmp/bar
  mode: a=rX,u+w
  contents: "hello {{ name }}\n"
` + "```" + `
`
}

func (m MkfileModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"path":     {Description: "File to create. Templated.", Required: &required},
		"mode":     {Description: "Permissions, octal or symbolic. Templated.", Required: &notRequired},
		"contents": {Description: "Ensure the file holds exactly this. Templated.", Required: &notRequired},
	}
}

// MkfileInput defines the parameters for fs.mkfile.
type MkfileInput struct {
	Path     string  `yaml:"path" up:"template"`
	Mode     string  `yaml:"mode,omitempty" up:"template"`
	Contents *string `yaml:"contents,omitempty" up:"template"`
}

func (i MkfileInput) Validate() error {
	return requireField("path", i.Path)
}

func (m MkfileModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(MkfileInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected MkfileInput, got %T", params)
	}

	if !pathExists(p.Path) {
		perm, err := creationMode(p.Mode, false, 0666)
		if err != nil {
			return &pkg.Result{}, err
		}
		var data []byte
		if p.Contents != nil {
			data = []byte(*p.Contents)
		}
		f, err := os.OpenFile(p.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err != nil {
			return &pkg.Result{}, err
		}
		_, werr := f.Write(data)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return &pkg.Result{}, werr
		}
		if p.Mode != "" {
			if err := os.Chmod(p.Path, perm); err != nil {
				return &pkg.Result{}, err
			}
		}
		return pkg.Changed(true), nil
	}

	changed := false
	if p.Contents != nil {
		current, err := host.ReadFile(p.Path)
		if err != nil {
			return &pkg.Result{}, err
		}
		if string(current) != *p.Contents {
			info, err := os.Stat(p.Path)
			if err != nil {
				return &pkg.Result{}, err
			}
			if err := host.WriteFile(p.Path, []byte(*p.Contents), info.Mode().Perm()); err != nil {
				return &pkg.Result{}, err
			}
			changed = true
		}
	}
	modeChanged, err := chmodNested(c, p.Path, p.Mode, nil)
	if err != nil {
		return &pkg.Result{}, err
	}
	return pkg.Changed(changed || modeChanged), nil
}

// RmModule implements fs.rm.
type RmModule struct{}

func (m RmModule) InputType() reflect.Type {
	return reflect.TypeOf(RmInput{})
}

func (m RmModule) Doc() string {
	return `Remove a file, or with recursive a directory and everything below it.`
}

// RmInput defines the parameters for fs.rm.
type RmInput struct {
	Path      string `yaml:"path" up:"template"`
	Recursive bool   `yaml:"recursive,omitempty"`
}

func (i RmInput) Validate() error {
	return requireField("path", i.Path)
}

func (m RmModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(RmInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected RmInput, got %T", params)
	}
	info, err := os.Lstat(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return pkg.Changed(false), nil
	}
	if err != nil {
		return &pkg.Result{}, err
	}
	if info.IsDir() && !p.Recursive {
		return &pkg.Result{}, fmt.Errorf("Path %s is a directory, will not remove without `recursive` option", p.Path)
	}
	if p.Recursive {
		err = os.RemoveAll(p.Path)
	} else {
		err = os.Remove(p.Path)
	}
	if err != nil {
		return &pkg.Result{}, err
	}
	return pkg.Changed(true), nil
}

// ChmodModule implements fs.chmod.
type ChmodModule struct{}

func (m ChmodModule) InputType() reflect.Type {
	return reflect.TypeOf(ChmodInput{})
}

func (m ChmodModule) Doc() string {
	return `Change the permissions of path. Modes are octal ("0755") or symbolic ("a=rX,u+w").`
}

func (m ChmodModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"path":         {Description: "Path to change. Templated.", Required: &required},
		"mode":         {Description: "Permissions, octal or symbolic. Templated.", Required: &notRequired},
		"is_directory": {Description: "Treat path as a directory for X. Detected from path when unset.", Required: &notRequired},
	}
}

// ChmodInput defines the parameters for fs.chmod.
type ChmodInput struct {
	Path        string `yaml:"path" up:"template"`
	Mode        string `yaml:"mode,omitempty" up:"template"`
	IsDirectory *bool  `yaml:"is_directory,omitempty"`
}

func (i ChmodInput) Validate() error {
	return requireField("path", i.Path)
}

func (m ChmodModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(ChmodInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected ChmodInput, got %T", params)
	}
	if p.Mode == "" {
		return pkg.Changed(false), nil
	}
	info, err := host.Stat(p.Path, true)
	if err != nil {
		return &pkg.Result{}, err
	}
	current := runtime.ToUnixMode(info.Mode())
	mode, err := runtime.ParseFileMode(p.Mode, info.Mode(), boolOr(p.IsDirectory, info.IsDir()))
	if err != nil {
		return &pkg.Result{}, err
	}
	wanted := runtime.ToUnixMode(mode)
	if current == wanted {
		return pkg.Changed(false), nil
	}
	if err := os.Chmod(p.Path, mode); err != nil {
		return &pkg.Result{}, err
	}
	res := pkg.Changed(true)
	res.ExtraMessage = fmt.Sprintf("Changed permissions: %o -> %o", current, wanted)
	return res, nil
}

// ChownModule implements fs.chown.
type ChownModule struct{}

func (m ChownModule) InputType() reflect.Type {
	return reflect.TypeOf(ChownInput{})
}

func (m ChownModule) Doc() string {
	return `Change the owner and/or group of path. Names and numeric ids are accepted.`
}

// ChownInput defines the parameters for fs.chown.
type ChownInput struct {
	Path  string `yaml:"path" up:"template"`
	User  string `yaml:"user,omitempty" up:"template"`
	Group string `yaml:"group,omitempty" up:"template"`
}

func (i ChownInput) Validate() error {
	return requireField("path", i.Path)
}

func lookupGID(name string) (int, error) {
	if gid, err := strconv.Atoi(name); err == nil {
		return gid, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}

func (m ChownModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(ChownInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected ChownInput, got %T", params)
	}
	info, err := host.Stat(p.Path, true)
	if err != nil {
		return &pkg.Result{}, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return &pkg.Result{}, fmt.Errorf("ownership of %s is not available on this platform", p.Path)
	}

	uid, gid := int(st.Uid), int(st.Gid)
	var notes []string
	if p.User != "" {
		if uid, err = lookupUID(p.User); err != nil {
			return &pkg.Result{}, err
		}
		if uid != int(st.Uid) {
			notes = append(notes, fmt.Sprintf("User changed from %d", st.Uid))
		}
	}
	if p.Group != "" {
		if gid, err = lookupGID(p.Group); err != nil {
			return &pkg.Result{}, err
		}
		if gid != int(st.Gid) {
			notes = append(notes, fmt.Sprintf("Group changed from %d", st.Gid))
		}
	}
	if len(notes) == 0 {
		return pkg.Changed(false), nil
	}
	if err := os.Chown(p.Path, uid, gid); err != nil {
		return &pkg.Result{}, err
	}
	res := pkg.Changed(true)
	res.ExtraMessage = joinNotes(notes)
	return res, nil
}

// MvModule implements fs.mv.
type MvModule struct{}

func (m MvModule) InputType() reflect.Type {
	return reflect.TypeOf(MvInput{})
}

func (m MvModule) Doc() string {
	return `Rename src to path. If src is gone but path exists the move is considered done; if neither exists the task fails.`
}

// MvInput defines the parameters for fs.mv.
type MvInput struct {
	Path string `yaml:"path" up:"template"`
	Src  string `yaml:"src" up:"template"`
}

func (i MvInput) Validate() error {
	if err := requireField("path", i.Path); err != nil {
		return err
	}
	return requireField("src", i.Src)
}

func (m MvModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(MvInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected MvInput, got %T", params)
	}
	if pathExists(p.Src) {
		dst := p.Path
		if info, err := os.Stat(dst); err == nil && info.IsDir() {
			dst = filepath.Join(dst, filepath.Base(p.Src))
		}
		if err := os.Rename(p.Src, dst); err != nil {
			// Across filesystems: copy, then remove the source.
			common.LogDebug("Rename failed, copying instead", map[string]interface{}{
				"src":   p.Src,
				"path":  dst,
				"error": err.Error(),
			})
			if err := host.CopyTree(p.Src, dst); err != nil {
				return &pkg.Result{}, err
			}
			if err := os.RemoveAll(p.Src); err != nil {
				return &pkg.Result{}, err
			}
		}
		return pkg.Changed(true), nil
	}
	if pathExists(p.Path) {
		return pkg.Changed(false), nil
	}
	return &pkg.Result{}, fmt.Errorf("No file to move: src=%s path=%s", p.Src, p.Path)
}

// LnModule implements fs.ln.
type LnModule struct{}

func (m LnModule) InputType() reflect.Type {
	return reflect.TypeOf(LnInput{})
}

func (m LnModule) Doc() string {
	return `Create a link at path pointing to src. Hard links by default, symbolic links with symbolic. If path is a directory the link is created inside it.`
}

// LnInput defines the parameters for fs.ln.
type LnInput struct {
	Path     string `yaml:"path" up:"template"`
	Src      string `yaml:"src" up:"template"`
	Symbolic bool   `yaml:"symbolic,omitempty"`
}

func (i LnInput) Validate() error {
	if err := requireField("path", i.Path); err != nil {
		return err
	}
	return requireField("src", i.Src)
}

func (m LnModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(LnInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected LnInput, got %T", params)
	}
	path := p.Path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, filepath.Base(p.Src))
	}

	if p.Symbolic {
		if target, err := os.Readlink(path); err == nil && target == p.Src {
			return pkg.Changed(false), nil
		}
		if _, err := os.Lstat(path); err == nil {
			if err := os.Remove(path); err != nil {
				return &pkg.Result{}, err
			}
		}
		if err := os.Symlink(p.Src, path); err != nil {
			return &pkg.Result{}, err
		}
		return pkg.Changed(true), nil
	}

	if pathInfo, err := os.Stat(path); err == nil {
		srcInfo, err := os.Stat(p.Src)
		if err != nil {
			return &pkg.Result{}, err
		}
		if os.SameFile(srcInfo, pathInfo) {
			return pkg.Changed(false), nil
		}
		if err := os.Remove(path); err != nil {
			return &pkg.Result{}, err
		}
	}
	if err := os.Link(p.Src, path); err != nil {
		return &pkg.Result{}, err
	}
	return pkg.Changed(true), nil
}

// ExistsModule implements fs.exists.
type ExistsModule struct{}

func (m ExistsModule) InputType() reflect.Type {
	return reflect.TypeOf(ExistsInput{})
}

func (m ExistsModule) Doc() string {
	return `Check that path exists. By default absence is an ignored failure, so the registered result can be tested.`
}

// ExistsInput defines the parameters for fs.exists.
type ExistsInput struct {
	Path          string `yaml:"path" up:"template"`
	IgnoreFailure *bool  `yaml:"ignore_failure,omitempty"`
}

func (i ExistsInput) Validate() error {
	return requireField("path", i.Path)
}

func (m ExistsModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(ExistsInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected ExistsInput, got %T", params)
	}
	if pathExists(p.Path) {
		return pkg.Changed(false), nil
	}
	res := pkg.Failure("File does not exist: " + p.Path)
	res.IgnoreFailure = boolOr(p.IgnoreFailure, true)
	return res, nil
}

// Mkdir creates a directory.
func Mkdir(r *pkg.Run, in MkdirInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.mkdir", in, opts)
}

// Mkfile creates a file.
func Mkfile(r *pkg.Run, in MkfileInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.mkfile", in, opts)
}

// Rm removes a file or directory.
func Rm(r *pkg.Run, in RmInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.rm", in, opts)
}

// Chmod changes permissions.
func Chmod(r *pkg.Run, in ChmodInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.chmod", in, opts)
}

// Chown changes ownership.
func Chown(r *pkg.Run, in ChownInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.chown", in, opts)
}

// Mv renames a file or directory.
func Mv(r *pkg.Run, in MvInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.mv", in, opts)
}

// Ln creates a link.
func Ln(r *pkg.Run, in LnInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.ln", in, opts)
}

// Exists checks that a path exists.
func Exists(r *pkg.Run, path string, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.exists", ExistsInput{Path: path}, opts)
}

func init() {
	pkg.RegisterModule("fs.mkdir", MkdirModule{})
	pkg.RegisterModule("fs.mkfile", MkfileModule{})
	pkg.RegisterModule("fs.rm", RmModule{})
	pkg.RegisterModule("fs.chmod", ChmodModule{})
	pkg.RegisterModule("fs.chown", ChownModule{})
	pkg.RegisterModule("fs.mv", MvModule{})
	pkg.RegisterModule("fs.ln", LnModule{})
	pkg.RegisterModule("fs.exists", ExistsModule{})
}
