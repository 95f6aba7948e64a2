package modules

import (
	"fmt"
	"os"
	"os/user"
	"reflect"
	"strconv"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"gopkg.in/yaml.v3"
)

// lookupUID resolves a user name or numeric uid.
func lookupUID(name string) (int, error) {
	if uid, err := strconv.Atoi(name); err == nil {
		return uid, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(u.Uid)
}

// UserInput names a user by name or uid.
type UserInput struct {
	User string `yaml:"user" up:"template"`
}

func (i UserInput) Validate() error {
	return requireField("user", i.User)
}

// UnmarshalYAML accepts the user as a plain scalar.
func (i *UserInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.User = node.Value
		return nil
	}
	type plain UserInput
	return node.Decode((*plain)(i))
}

// RequireModule implements core.require: fail unless the run is executing
// as the given user.
type RequireModule struct{}

func (m RequireModule) InputType() reflect.Type {
	return reflect.TypeOf(UserInput{})
}

func (m RequireModule) Doc() string {
	return `Verify the playbook runs as the given user (name or uid).

## Examples

` + "```yaml" + `
- task: core.require
  user: root
` + "```" + `
`
}

func (m RequireModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(UserInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected UserInput, got %T", params)
	}
	uid, err := lookupUID(p.User)
	if err != nil {
		return &pkg.Result{}, err
	}
	if current := os.Getuid(); current != uid {
		return &pkg.Result{}, fmt.Errorf("Expected to run as user %s, got uid=%d", p.User, current)
	}
	return pkg.Changed(false), nil
}

// BecomeModule implements core.become: switch the effective user until the
// result is closed.
type BecomeModule struct{}

func (m BecomeModule) InputType() reflect.Type {
	return reflect.TypeOf(UserInput{})
}

func (m BecomeModule) Doc() string {
	return `Switch the effective user of the run. Closing the result, or leaving a become block, switches back.

## Examples

` + "```yaml" + `
- become: backup
  steps:
    - task: fs.mkfile
      path: /tmp/backupfile
` + "```" + `
`
}

func (m BecomeModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(UserInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected UserInput, got %T", params)
	}
	uid, err := lookupUID(p.User)
	if err != nil {
		return &pkg.Result{}, err
	}
	restore, err := seteuid(uid)
	if err != nil {
		return &pkg.Result{}, err
	}
	return pkg.Changed(false).WithCloser(restore), nil
}

// Require fails unless running as user.
func Require(r *pkg.Run, user string, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.require", UserInput{User: user}, opts)
}

// Become switches the effective user. Close the result to switch back.
func Become(r *pkg.Run, user string, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.become", UserInput{User: user}, opts)
}

func init() {
	pkg.RegisterModule("core.require", RequireModule{})
	pkg.RegisterModule("core.become", BecomeModule{})
}
