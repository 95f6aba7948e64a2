package modules

import (
	"fmt"
	"reflect"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"gopkg.in/yaml.v3"
)

// PlaybookArgsModule implements core.playbook_args: parse the remaining
// command line into the ARGS namespace.
type PlaybookArgsModule struct{}

func (m PlaybookArgsModule) InputType() reflect.Type {
	return reflect.TypeOf(PlaybookArgsInput{})
}

func (m PlaybookArgsModule) Doc() string {
	return `Declare the arguments of a playbook. Arguments without a default are positional and required, arguments with a default become --name options, bool arguments get --name and --no-name. Defaults are templated. Values are available as ARGS.<name>, with "-" replaced by "_".

## Examples

` + "```yaml" + `
- args:
    - name: user
    - name: hostname
      default: "{{ platform.fqdn }}"
    - name: is-owner
      type: bool
      default: false
- task: core.debug
  msg: "user={{ ARGS.user }} hostname={{ ARGS.hostname }} owner={{ ARGS.is_owner }}"
` + "```" + `

Run as ` + "`up playbook --is-owner --hostname=localhost username`" + `.
`
}

func (m PlaybookArgsModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	return map[string]pkg.ParameterDoc{
		"args": {
			Description: "List of arguments with name, label, description, type and default.",
			Required:    &required,
		},
	}
}

// PlaybookArgsInput is the list of argument declarations.
type PlaybookArgsInput struct {
	Args []pkg.Argument `yaml:"args" up:"template"`
}

func (i PlaybookArgsInput) Validate() error {
	for _, a := range i.Args {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalYAML accepts the declarations as a plain sequence.
func (i *PlaybookArgsInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&i.Args)
	}
	type plain PlaybookArgsInput
	return node.Decode((*plain)(i))
}

func (m PlaybookArgsModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(PlaybookArgsInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected PlaybookArgsInput, got %T", params)
	}
	if err := c.Run.ParseArgs(p.Args); err != nil {
		return &pkg.Result{HideArgs: true}, err
	}
	return &pkg.Result{HideArgs: true}, nil
}

// PlaybookArgs parses the command line left for the playbook.
func PlaybookArgs(r *pkg.Run, args ...pkg.Argument) (*pkg.Result, error) {
	return invoke(r, "core.playbook_args", PlaybookArgsInput{Args: args}, nil)
}

func init() {
	pkg.RegisterModule("core.playbook_args", PlaybookArgsModule{})
}
