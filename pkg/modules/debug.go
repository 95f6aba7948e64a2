package modules

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"gopkg.in/yaml.v3"
)

// DebugModule implements core.debug.
type DebugModule struct{}

func (m DebugModule) InputType() reflect.Type {
	return reflect.TypeOf(DebugInput{})
}

// Doc returns module-level documentation rendered into Markdown.
func (m DebugModule) Doc() string {
	return `Display an informational message or pretty-print a variable.

## Examples

` + "```yaml" + `
- task: core.debug
  msg: "Directory already exists, exiting"

- task: core.debug
  var: ARGS
` + "```" + `
`
}

// ParameterDocs provides rich documentation for debug module inputs.
func (m DebugModule) ParameterDocs() map[string]pkg.ParameterDoc {
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"msg": {
			Description: "Message to display. Templated.",
			Required:    &notRequired,
		},
		"var": {
			Description: "Name of the variable to pretty-print. Dotted names traverse mappings.",
			Required:    &notRequired,
		},
	}
}

// DebugInput defines the structure for the debug module's input.
type DebugInput struct {
	Msg string `yaml:"msg,omitempty" up:"template"`
	Var string `yaml:"var,omitempty" up:"template"`
}

// Validate ensures that msg or var is provided.
func (i DebugInput) Validate() error {
	if i.Msg == "" && i.Var == "" {
		return fmt.Errorf("either 'msg' or 'var' must be provided to debug module")
	}
	return nil
}

// UnmarshalYAML accepts the message as a plain scalar.
func (i *DebugInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Msg = node.Value
		return nil
	}
	type plain DebugInput
	return node.Decode((*plain)(i))
}

// Execute renders the message and the variable dump as task output.
func (m DebugModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(DebugInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected DebugInput, got %T", params)
	}

	var output strings.Builder
	if p.Msg != "" {
		output.WriteString(p.Msg)
		output.WriteString("\n")
	}
	if p.Var != "" {
		val, found := common.LookupPath(c.GetFacts(), p.Var)
		if !found {
			return &pkg.Result{HideArgs: true}, &pkg.UndefinedVariableError{Template: p.Var, Names: []string{p.Var}}
		}
		dump, err := yaml.Marshal(val)
		if err != nil {
			return &pkg.Result{HideArgs: true}, fmt.Errorf("failed to format %s: %w", p.Var, err)
		}
		for _, line := range strings.Split(strings.TrimRight(string(dump), "\n"), "\n") {
			output.WriteString("    " + line + "\n")
		}
	}

	common.LogDebug("Debug output", map[string]interface{}{
		"module":   "debug",
		"location": c.Call.Location(),
	})
	return &pkg.Result{Output: strings.TrimRight(output.String(), " \n"), HideArgs: true}, nil
}

// PrintModule implements core.print: the message is written below an
// unchanged status line.
type PrintModule struct{}

func (m PrintModule) InputType() reflect.Type {
	return reflect.TypeOf(PrintInput{})
}

func (m PrintModule) Doc() string {
	return `Print a templated message, like debug without variable dumps.`
}

// PrintInput is the message to print.
type PrintInput struct {
	Msg string `yaml:"msg" up:"template"`
}

func (i PrintInput) Validate() error {
	return nil
}

// UnmarshalYAML accepts the message as a plain scalar.
func (i *PrintInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Msg = node.Value
		return nil
	}
	type plain PrintInput
	return node.Decode((*plain)(i))
}

func (m PrintModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(PrintInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected PrintInput, got %T", params)
	}
	return &pkg.Result{Output: p.Msg, HideArgs: true}, nil
}

// Debug displays a message or variable.
func Debug(r *pkg.Run, in DebugInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.debug", in, opts)
}

// Print writes a templated message.
func Print(r *pkg.Run, msg string, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.print", PrintInput{Msg: msg}, opts)
}

func init() {
	pkg.RegisterModule("core.debug", DebugModule{})
	pkg.RegisterModule("core.print", PrintModule{})
}
