package modules

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"gopkg.in/yaml.v3"
)

// FailModule implements core.fail.
type FailModule struct{}

func (m FailModule) InputType() reflect.Type {
	return reflect.TypeOf(FailInput{})
}

// Doc returns module-level documentation rendered into Markdown.
func (m FailModule) Doc() string {
	return `Abort the playbook run with a custom message. Inside an ignore_failures block the run continues and the step is reported as a failure.

## Examples

` + "```yaml" + `
- task: core.fail
  msg: "This playbook requires root privileges"

- task: core.fail
  msg: "Variable 'required_var' is not defined"
  when: required_var is not defined
` + "```" + `
`
}

// ParameterDocs provides rich documentation for fail module inputs.
func (m FailModule) ParameterDocs() map[string]pkg.ParameterDoc {
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"msg": {
			Description: "The failure message to display. Templated.",
			Required:    &notRequired,
			Default:     "Failed as requested from task",
		},
	}
}

// FailInput defines the structure for the fail module's input.
type FailInput struct {
	Msg string `yaml:"msg" up:"template"`
}

func (i FailInput) Validate() error {
	return nil
}

// UnmarshalYAML accepts the message as a plain scalar.
func (i *FailInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Msg = node.Value
		return nil
	}
	type plain FailInput
	return node.Decode((*plain)(i))
}

// Execute always fails.
func (m FailModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(FailInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected FailInput, got %T", params)
	}
	msg := p.Msg
	if msg == "" {
		msg = "Failed as requested from task"
	}
	return &pkg.Result{}, errors.New(msg)
}

// ExitModule implements core.exit.
type ExitModule struct{}

func (m ExitModule) InputType() reflect.Type {
	return reflect.TypeOf(ExitInput{})
}

func (m ExitModule) Doc() string {
	return `End the playbook run. Pending handlers still run and the recap is printed; the process exits with returncode.

## Examples

` + "```yaml" + `
- task: core.exit
- task: core.exit
  returncode: 1
  msg: "Unable to download file"
` + "```" + `
`
}

func (m ExitModule) ParameterDocs() map[string]pkg.ParameterDoc {
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"returncode": {
			Description: "Exit code for the process. 0 is success, 1-255 are failures.",
			Required:    &notRequired,
			Default:     "0",
		},
		"msg": {
			Description: "Message to display. Templated.",
			Required:    &notRequired,
		},
	}
}

// ExitInput is the exit code and message of core.exit.
type ExitInput struct {
	ReturnCode int    `yaml:"returncode"`
	Msg        string `yaml:"msg" up:"template"`
}

func (i ExitInput) Validate() error {
	if i.ReturnCode < 0 || i.ReturnCode > 255 {
		return fmt.Errorf("returncode must be between 0 and 255, got %d", i.ReturnCode)
	}
	return nil
}

// Execute requests the end of the run.
func (m ExitModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(ExitInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected ExitInput, got %T", params)
	}
	return &pkg.Result{}, &pkg.ExitError{Code: p.ReturnCode, Msg: p.Msg}
}

// Fail aborts the run with msg.
func Fail(r *pkg.Run, msg string, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.fail", FailInput{Msg: msg}, opts)
}

// Exit ends the run with returncode.
func Exit(r *pkg.Run, returncode int, msg string, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.exit", ExitInput{ReturnCode: returncode, Msg: msg}, opts)
}

func init() {
	pkg.RegisterModule("core.fail", FailModule{})
	pkg.RegisterModule("core.exit", ExitModule{})
}
