package modules

import (
	"fmt"
	"os"
	"reflect"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// CdModule implements fs.cd. The working directory is process wide; closing
// the result changes back to the previous directory.
type CdModule struct{}

func (m CdModule) InputType() reflect.Type {
	return reflect.TypeOf(CdInput{})
}

func (m CdModule) Doc() string {
	return `Change the working directory. The previous directory is available as extra.old_dir. In a cd block the previous directory is restored when the block ends, also when a step in it fails.

## Examples

` + "```yaml" + `
- task: fs.cd
  path: /tmp

- cd: /usr/local/src/app
  steps:
    - task: core.run
      command: docker compose up -d
` + "```" + `
`
}

// CdInput is the directory to change into.
type CdInput struct {
	Path string `yaml:"path" up:"template"`
}

func (i CdInput) Validate() error {
	return requireField("path", i.Path)
}

// UnmarshalYAML accepts the path as a plain scalar.
func (i *CdInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Path = node.Value
		return nil
	}
	type plain CdInput
	return node.Decode((*plain)(i))
}

func (m CdModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(CdInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected CdInput, got %T", params)
	}
	oldDir, err := os.Getwd()
	if err != nil {
		return &pkg.Result{}, err
	}
	if err := os.Chdir(p.Path); err != nil {
		return &pkg.Result{}, err
	}

	run := c.Run
	res := &pkg.Result{Extra: map[string]interface{}{"old_dir": oldDir}}
	return res.WithCloser(func() error {
		_, err := run.Invoke("fs.cd", CdInput{Path: oldDir}, pkg.RawArgs("path"))
		return err
	}), nil
}

// Cd changes the working directory. Close the result to change back.
func Cd(r *pkg.Run, path string, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.cd", CdInput{Path: path}, opts)
}

// InDir runs fn with path as working directory and restores the previous
// directory afterwards, whether fn fails or not.
func InDir(r *pkg.Run, path string, fn func() error) (err error) {
	res, err := invoke(r, "fs.cd", CdInput{Path: path}, nil)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("cd %s failed: %w", path, res.Err)
	}
	defer func() {
		err = multierr.Append(err, res.Close())
	}()
	return fn()
}

func init() {
	pkg.RegisterModule("fs.cd", CdModule{})
}
