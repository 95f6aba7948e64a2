package modules

import (
	"fmt"
	"os"
	"reflect"
	"syscall"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"github.com/AlexanderGrooff/uplaybook/pkg/runtime"
	"gopkg.in/yaml.v3"
)

// StatModule implements fs.stat. It never changes anything; the information
// is returned in extra.
type StatModule struct{}

func (sm StatModule) InputType() reflect.Type {
	return reflect.TypeOf(StatInput{})
}

// Doc returns module-level documentation rendered into Markdown.
func (sm StatModule) Doc() string {
	return `Get information about path.

Extra: perms, st_mode, st_ino, st_dev, st_nlink, st_uid, st_gid, st_size, st_atime, st_mtime, st_ctime, S_ISBLK, S_ISCHR, S_ISDIR, S_ISFIFO, S_ISLNK, S_ISREG, S_ISSOCK.

## Examples

` + "```yaml" + `
- task: fs.stat
  path: /tmp/foo
  register: foo
- task: core.debug
  msg: "UID: {{ foo.extra.st_uid }}"
` + "```" + `
`
}

func (sm StatModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"path": {
			Description: "Path to stat. Templated.",
			Required:    &required,
		},
		"follow_symlinks": {
			Description: "Report on the target of a symlink instead of the link itself.",
			Required:    &notRequired,
			Default:     "true",
		},
	}
}

// StatInput defines the parameters for fs.stat.
type StatInput struct {
	Path           string `yaml:"path" up:"template"`
	FollowSymlinks *bool  `yaml:"follow_symlinks,omitempty"`
}

func (i StatInput) Validate() error {
	return requireField("path", i.Path)
}

// UnmarshalYAML accepts the path as a plain scalar.
func (i *StatInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Path = node.Value
		return nil
	}
	type plain StatInput
	return node.Decode((*plain)(i))
}

// StatDetails is the information about one path.
type StatDetails struct {
	Perms uint32
	Mode  uint32
	Ino   uint64
	Dev   uint64
	NLink uint64
	UID   int
	GID   int
	Size  int64
	Atime float64
	Mtime float64
	Ctime float64
}

// Function to convert syscall.Timespec to float64 seconds since epoch
func timespecToFloat(ts syscall.Timespec) float64 {
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}

// asExtra flattens the details the way templates see them.
func (d StatDetails) asExtra(mode os.FileMode) map[string]interface{} {
	return map[string]interface{}{
		"perms":    d.Perms,
		"st_mode":  d.Mode,
		"st_ino":   d.Ino,
		"st_dev":   d.Dev,
		"st_nlink": d.NLink,
		"st_uid":   d.UID,
		"st_gid":   d.GID,
		"st_size":  d.Size,
		"st_atime": d.Atime,
		"st_mtime": d.Mtime,
		"st_ctime": d.Ctime,
		"S_ISBLK":  mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0,
		"S_ISCHR":  mode&os.ModeCharDevice != 0,
		"S_ISDIR":  mode.IsDir(),
		"S_ISFIFO": mode&os.ModeNamedPipe != 0,
		"S_ISLNK":  mode&os.ModeSymlink != 0,
		"S_ISREG":  mode.IsRegular(),
		"S_ISSOCK": mode&os.ModeSocket != 0,
	}
}

func (sm StatModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(StatInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected StatInput, got %T", params)
	}

	fileInfo, err := host.Stat(p.Path, boolOr(p.FollowSymlinks, true))
	if err != nil {
		return &pkg.Result{}, fmt.Errorf("failed to stat path %s: %w", p.Path, err)
	}

	details := StatDetails{
		Perms: runtime.ToUnixMode(fileInfo.Mode()),
		Size:  fileInfo.Size(),
		Mtime: float64(fileInfo.ModTime().UnixNano()) / 1e9,
	}
	if sysStat, ok := fileInfo.Sys().(*syscall.Stat_t); ok {
		details.Mode = uint32(sysStat.Mode)
		details.Ino = uint64(sysStat.Ino)
		details.Dev = uint64(sysStat.Dev)
		details.NLink = uint64(sysStat.Nlink)
		details.UID = int(sysStat.Uid)
		details.GID = int(sysStat.Gid)
		assignTimestampsOSSpecific(&details, sysStat)
	} else {
		common.LogWarn("Could not get detailed syscall.Stat_t for path", map[string]interface{}{"path": p.Path})
	}

	return &pkg.Result{Extra: details.asExtra(fileInfo.Mode())}, nil
}

// Stat returns information about path in extra.
func Stat(r *pkg.Run, in StatInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.stat", in, opts)
}

func init() {
	pkg.RegisterModule("fs.stat", StatModule{})
}
