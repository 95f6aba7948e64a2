package modules

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// SetModule implements core.set: bind playbook variables from a task.
// Binding a variable never changes the system, so the result is unchanged;
// the names whose value differs from before are listed in the extra message.
type SetModule struct{}

func (m SetModule) InputType() reflect.Type {
	return reflect.TypeOf(SetInput{})
}

func (m SetModule) Doc() string {
	return `Bind playbook variables. Values are templated once, against the context at the time of the call, and are visible to every later step.

## Examples

` + "```yaml" + `
- task: core.set
  vars:
    site: example.com
    docroot: "/srv/{{ site }}"
` + "```" + `
`
}

// SetInput defines the variables to bind.
type SetInput struct {
	Vars map[string]interface{} `yaml:"vars" up:"template"`
}

// Validate ensures that there are variables to set and none is reserved.
func (i SetInput) Validate() error {
	if len(i.Vars) == 0 {
		return fmt.Errorf("no variables provided to set module")
	}
	for name := range i.Vars {
		if pkg.IsReserved(name) {
			return fmt.Errorf("%q is a reserved namespace and cannot be assigned", name)
		}
	}
	return nil
}

// UnmarshalYAML accepts the variables directly as a mapping, or under "vars".
func (i *SetInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("failed to unmarshal set input (line %d): expected a map", node.Line)
	}
	vars := make(map[string]interface{})
	if err := node.Decode(&vars); err != nil {
		return err
	}
	if nested, ok := vars["vars"].(map[string]interface{}); ok && len(vars) == 1 {
		vars = nested
	}
	i.Vars = vars
	return nil
}

func (m SetModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(SetInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected SetInput, got %T", params)
	}

	names := make([]string, 0, len(p.Vars))
	for name := range p.Vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var updated []string
	for _, name := range names {
		value := p.Vars[name]
		if prev, exists := c.Run.Vars().Get(name); !exists || !cmp.Equal(prev, value) {
			updated = append(updated, name)
		}
		if err := c.Run.Set(name, value); err != nil {
			return &pkg.Result{}, err
		}
	}
	common.LogDebug("Variables set", map[string]interface{}{
		"updated": updated,
	})

	res := pkg.Changed(false)
	if len(updated) > 0 {
		res.ExtraMessage = "Updated: " + joinNotes(updated)
	}
	return res, nil
}

// LookupModule implements core.lookup: resolve one top-level name through
// every template layer. Dotted names are not traversed.
type LookupModule struct{}

func (m LookupModule) InputType() reflect.Type {
	return reflect.TypeOf(LookupInput{})
}

func (m LookupModule) Doc() string {
	return `Look up a top-level name in the template context and return it as extra.value.`
}

// LookupInput names the variable to resolve.
type LookupInput struct {
	Var string `yaml:"var" up:"template"`
}

func (i LookupInput) Validate() error {
	return requireField("var", i.Var)
}

// UnmarshalYAML accepts the name as a plain scalar.
func (i *LookupInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Var = node.Value
		return nil
	}
	type plain LookupInput
	return node.Decode((*plain)(i))
}

func (m LookupModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(LookupInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected LookupInput, got %T", params)
	}
	v, found := c.GetFact(p.Var)
	if !found {
		return &pkg.Result{}, &pkg.UndefinedVariableError{Template: p.Var, Names: []string{p.Var}}
	}
	return &pkg.Result{Extra: map[string]interface{}{"value": v}}, nil
}

// Set binds name to value as a task.
func Set(r *pkg.Run, name string, value interface{}, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.set", SetInput{Vars: map[string]interface{}{name: value}}, opts)
}

// Lookup returns the value bound to a top-level name.
func Lookup(r *pkg.Run, name string, opts ...pkg.InvokeOption) (interface{}, error) {
	res, err := invoke(r, "core.lookup", LookupInput{Var: name}, opts)
	if err != nil || !res.OK() {
		return nil, err
	}
	v, _ := res.Get("value")
	return v, nil
}

func init() {
	pkg.RegisterModule("core.set", SetModule{})
	pkg.RegisterModule("core.lookup", LookupModule{})
}
