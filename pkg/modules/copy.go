package modules

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"github.com/AlexanderGrooff/uplaybook/pkg/runtime"
)

// CpModule implements fs.cp.
type CpModule struct{}

func (m CpModule) InputType() reflect.Type {
	return reflect.TypeOf(CpInput{})
}

// Doc returns module-level documentation rendered into Markdown.
func (m CpModule) Doc() string {
	return `Copy the src file(s) to path, templating the contents by default.

A relative src is searched for along the files path (UP_FILES_PATH, default "...:.../files:."), where "..." is the directory of the playbook. Vault encrypted sources are decrypted with decrypt_password; encrypt_password writes the destination vault encrypted. A unified diff of the change is available as extra.diff.

## Examples

` + "```yaml" + `
- task: fs.cp
  path: /etc/motd            # from motd.j2 next to the playbook
- task: fs.cp
  src: "bar-{{ platform.fqdn }}.conf"
  path: /tmp/bar
  template: false
- task: fs.cp
  src: site/
  path: /srv/www/
  mode: a=rX,u+w
` + "```" + `
`
}

func (m CpModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"path":               {Description: "Destination. Templated.", Required: &required},
		"src":                {Description: "Source, defaults to the basename of path plus \".j2\". Templated.", Required: &notRequired},
		"mode":               {Description: "Permissions of the written files, octal or symbolic. Templated.", Required: &notRequired},
		"template":           {Description: "Template the contents of src.", Required: &notRequired, Default: "true"},
		"template_filenames": {Description: "Template file names found while copying recursively.", Required: &notRequired, Default: "true"},
		"recursive":          {Description: "Copy a src directory and everything below it. If path ends in \"/\" the last component of src is created below path.", Required: &notRequired, Default: "true"},
		"decrypt_password":   {Description: "Password for vault encrypted sources. Templated, never displayed.", Required: &notRequired},
		"encrypt_password":   {Description: "Vault encrypt the destination with this password. Templated, never displayed.", Required: &notRequired},
	}
}

// CpInput defines the parameters for fs.cp.
type CpInput struct {
	Path              string `yaml:"path" up:"template"`
	Src               string `yaml:"src,omitempty" up:"template"`
	Mode              string `yaml:"mode,omitempty" up:"template"`
	Template          *bool  `yaml:"template,omitempty"`
	TemplateFilenames *bool  `yaml:"template_filenames,omitempty"`
	Recursive         *bool  `yaml:"recursive,omitempty"`
	DecryptPassword   string `yaml:"decrypt_password,omitempty" up:"template,secret"`
	EncryptPassword   string `yaml:"encrypt_password,omitempty" up:"template,secret"`
}

func (i CpInput) Validate() error {
	return requireField("path", i.Path)
}

func (m CpModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(CpInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected CpInput, got %T", params)
	}

	srcName := p.Src
	if srcName == "" {
		srcName = filepath.Base(p.Path) + ".j2"
	}
	src, err := c.Run.FindFile(srcName)
	if err != nil {
		return &pkg.Result{}, err
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return &pkg.Result{}, err
	}

	notes := make(map[string]bool)
	extra := make(map[string]interface{})
	if srcInfo.IsDir() && boolOr(p.Recursive, true) {
		dst := p.Path
		if strings.HasSuffix(dst, "/") {
			dst = filepath.Join(dst, filepath.Base(src))
		}
		if err := copyTree(c, src, dst, p, notes); err != nil {
			return &pkg.Result{}, err
		}
	} else {
		note, diff, err := copyFile(c, src, p.Path, p)
		if err != nil {
			return &pkg.Result{}, err
		}
		if note != "" {
			notes[note] = true
		}
		if diff != "" {
			extra["diff"] = diff
		}
	}

	res := &pkg.Result{Extra: extra}
	if len(notes) > 0 {
		sorted := make([]string, 0, len(notes))
		for n := range notes {
			sorted = append(sorted, n)
		}
		sort.Strings(sorted)
		res.Changed = true
		res.ExtraMessage = joinNotes(sorted)
	}
	return res, nil
}

// copyTree mirrors the src directory below dst. Every directory and file is
// its own nested task so each shows up in the status output.
func copyTree(c *pkg.Closure, src, dst string, p CpInput, notes map[string]bool) error {
	var rawNames []string
	if !boolOr(p.TemplateFilenames, true) {
		rawNames = []string{"path"}
	}
	return filepath.WalkDir(src, func(walked string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, walked)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			res, err := c.Run.Invoke("fs.mkdir", MkdirInput{Path: target, Mode: p.Mode}, pkg.RawArgs(append(rawNames, "mode")...))
			if err != nil {
				return err
			}
			if res.Changed {
				notes["Subdir"] = true
			}
			return nil
		}

		res, err := c.Run.Invoke("fs.cp", CpInput{
			Path:            target,
			Src:             walked,
			Mode:            p.Mode,
			Template:        p.Template,
			Recursive:       boolPtr(false),
			DecryptPassword: p.DecryptPassword,
			EncryptPassword: p.EncryptPassword,
		}, pkg.RawArgs(append(rawNames, "src", "mode", "decrypt_password", "encrypt_password")...))
		if err != nil {
			return err
		}
		if res.Changed {
			notes["Subfile"] = true
		}
		return nil
	})
}

// copyFile writes one file. It returns what changed ("Contents" or
// "Permissions", empty for nothing) and a diff of the contents.
func copyFile(c *pkg.Closure, src, dst string, p CpInput) (string, string, error) {
	data, err := host.ReadFile(src)
	if err != nil {
		return "", "", err
	}
	if pkg.IsVaultText(data) {
		if p.DecryptPassword == "" {
			return "", "", fmt.Errorf("An encrypted file was found (%s) but no decryption key was given", src)
		}
		if data, err = pkg.DecryptIfVault(data, p.DecryptPassword); err != nil {
			return "", "", fmt.Errorf("failed to decrypt %s: %w", src, err)
		}
	}
	if boolOr(p.Template, true) {
		rendered, err := pkg.TemplateString(string(data), c.GetFacts())
		if err != nil {
			return "", "", fmt.Errorf("failed to template %s: %w", src, err)
		}
		data = []byte(rendered)
	}

	var oldData []byte
	var oldMode os.FileMode
	exists := false
	if info, err := os.Stat(dst); err == nil {
		exists = true
		oldMode = info.Mode()
		if oldData, err = host.ReadFile(dst); err != nil {
			return "", "", err
		}
	}
	oldPlain := oldData
	if exists && p.EncryptPassword != "" && pkg.IsVaultText(oldData) {
		// An encrypted destination is compared by its plaintext, new
		// ciphertext differs on every run.
		if plain, err := pkg.DecryptIfVault(oldData, p.EncryptPassword); err == nil {
			oldPlain = plain
		}
	}

	newMode := oldMode.Perm()
	if !exists {
		newMode = 0644
	}
	if p.Mode != "" {
		if newMode, err = runtime.ParseFileMode(p.Mode, oldMode, false); err != nil {
			return "", "", err
		}
	}
	modeChanged := exists && runtime.ToUnixMode(newMode) != runtime.ToUnixMode(oldMode)

	if exists && bytes.Equal(oldPlain, data) {
		if !modeChanged {
			return "", "", nil
		}
		if err := os.Chmod(dst, newMode); err != nil {
			return "", "", err
		}
		return "Permissions", "", nil
	}

	diff := ""
	if p.EncryptPassword == "" {
		if diff, err = pkg.GenerateUnifiedDiff(dst, string(oldPlain), string(data)); err != nil {
			common.LogWarn("Failed to generate diff", map[string]interface{}{"path": dst, "error": err.Error()})
		}
	}
	out := data
	if p.EncryptPassword != "" {
		if out, err = pkg.EncryptVault(data, p.EncryptPassword); err != nil {
			return "", "", err
		}
	}
	if err := writeAtomic(dst, out, newMode); err != nil {
		return "", "", err
	}
	return "Contents", diff, nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, mode)
	}
	if werr == nil {
		werr = os.Rename(tmpName, path)
	}
	if werr != nil {
		os.Remove(tmpName)
		return werr
	}
	return nil
}

// Cp copies and templates files.
func Cp(r *pkg.Run, in CpInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.cp", in, opts)
}

func init() {
	pkg.RegisterModule("fs.cp", CpModule{})
}
