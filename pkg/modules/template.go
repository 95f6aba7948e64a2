package modules

import (
	"fmt"
	"reflect"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"gopkg.in/yaml.v3"
)

// RenderModule implements core.render: the templated string is stored in
// extra.rendered.
type RenderModule struct{}

func (m RenderModule) InputType() reflect.Type {
	return reflect.TypeOf(RenderInput{})
}

func (m RenderModule) Doc() string {
	return `Render a string as a jinja2 template. The value is available as extra.rendered.

## Examples

` + "```yaml" + `
- task: core.render
  s: "Value of foo: {{ foo }}"
  register: rendered
` + "```" + `
`
}

func (m RenderModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	return map[string]pkg.ParameterDoc{
		"s": {
			Description: "Template to render.",
			Required:    &required,
		},
	}
}

// RenderInput is the template to render.
type RenderInput struct {
	S string `yaml:"s" up:"template"`
}

func (i RenderInput) Validate() error {
	return nil
}

// UnmarshalYAML accepts the template as a plain scalar.
func (i *RenderInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.S = node.Value
		return nil
	}
	type plain RenderInput
	return node.Decode((*plain)(i))
}

// Execute has nothing left to do, expansion already happened.
func (m RenderModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(RenderInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected RenderInput, got %T", params)
	}
	return &pkg.Result{Extra: map[string]interface{}{"rendered": p.S}, HideArgs: true}, nil
}

// Render expands s against the run's template context.
func Render(r *pkg.Run, s string, opts ...pkg.InvokeOption) (string, error) {
	res, err := invoke(r, "core.render", RenderInput{S: s}, opts)
	if err != nil {
		return "", err
	}
	v, _ := res.Get("rendered")
	rendered, _ := v.(string)
	return rendered, nil
}

func init() {
	pkg.RegisterModule("core.render", RenderModule{})
}
