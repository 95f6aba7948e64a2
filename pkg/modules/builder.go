package modules

import (
	"fmt"
	"reflect"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"gopkg.in/yaml.v3"
)

// Actions understood by fs.fs.
const (
	ActionTemplate  = "template"
	ActionCopy      = "copy"
	ActionDirectory = "directory"
	ActionExists    = "exists"
	ActionLink      = "link"
	ActionSymlink   = "symlink"
	ActionAbsent    = "absent"
)

var fsActions = []string{ActionTemplate, ActionCopy, ActionDirectory, ActionExists, ActionLink, ActionSymlink, ActionAbsent}

// FsModule implements fs.fs, one entry point dispatching to the other fs
// tasks by action.
type FsModule struct{}

func (m FsModule) InputType() reflect.Type {
	return reflect.TypeOf(FsInput{})
}

func (m FsModule) Doc() string {
	return `Build one filesystem object. Meant for item loops and fs.builder, where many objects are declared compactly.

## Examples

` + "```yaml" + `
- task: fs.fs
  path: /tmp/foo
- task: fs.fs
  path: /tmp/bar
  action: directory
  owner: nobody
  notify: restart app
` + "```" + `
`
}

func (m FsModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"path":   {Description: "Destination filesystem object. Templated.", Required: &required},
		"action": {Description: "What path should be. Templated.", Required: &notRequired, Default: ActionTemplate, Choices: fsActions},
		"src":    {Description: "Source for template, copy and link actions. Defaults to the basename of path plus \".j2\" when templating. Templated.", Required: &notRequired},
		"mode":   {Description: "Permissions of path. Templated.", Required: &notRequired},
		"owner":  {Description: "Owner of path. Templated.", Required: &notRequired},
		"group":  {Description: "Group of path. Templated.", Required: &notRequired},
		"notify": {Description: "Name of the handler to notify when something changed. Templated.", Required: &notRequired},
	}
}

// FsInput defines the parameters for fs.fs.
type FsInput struct {
	Path   string `yaml:"path" up:"template"`
	Action string `yaml:"action,omitempty" up:"template"`
	Src    string `yaml:"src,omitempty" up:"template"`
	Mode   string `yaml:"mode,omitempty" up:"template"`
	Owner  string `yaml:"owner,omitempty" up:"template"`
	Group  string `yaml:"group,omitempty" up:"template"`
	Notify string `yaml:"notify,omitempty" up:"template"`
	// Handler is notified instead of the named one when set from Go.
	Handler *pkg.Handler `yaml:"-"`
}

func (i FsInput) Validate() error {
	if err := requireField("path", i.Path); err != nil {
		return err
	}
	if i.Action == "" {
		return nil
	}
	for _, a := range fsActions {
		if a == i.Action {
			return nil
		}
	}
	return fmt.Errorf("unknown action: %s", i.Action)
}

func (m FsModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(FsInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected FsInput, got %T", params)
	}
	h := p.Handler
	if h == nil && p.Notify != "" {
		var found bool
		if h, found = c.Run.Handlers.Lookup(p.Notify); !found {
			return &pkg.Result{}, fmt.Errorf("no handler named %q", p.Notify)
		}
	}

	r := c.Run
	raw := pkg.RawArgs("path", "src", "mode", "user", "group")
	var res *pkg.Result
	var err error
	switch p.Action {
	case ActionTemplate, "":
		res, err = r.Invoke("fs.cp", CpInput{Path: p.Path, Src: p.Src}, raw)
	case ActionCopy:
		res, err = r.Invoke("fs.cp", CpInput{Path: p.Path, Src: p.Src, Template: boolPtr(false)}, raw)
	case ActionDirectory:
		res, err = r.Invoke("fs.mkdir", MkdirInput{Path: p.Path, Mode: p.Mode}, raw)
	case ActionExists:
		res, err = r.Invoke("fs.mkfile", MkfileInput{Path: p.Path, Mode: p.Mode}, raw)
	case ActionLink:
		res, err = r.Invoke("fs.ln", LnInput{Path: p.Path, Src: p.Src}, raw)
	case ActionSymlink:
		res, err = r.Invoke("fs.ln", LnInput{Path: p.Path, Src: p.Src, Symbolic: true}, raw)
	case ActionAbsent:
		res, err = r.Invoke("fs.rm", RmInput{Path: p.Path}, raw)
	}
	if err != nil {
		return &pkg.Result{}, err
	}
	if !res.OK() {
		failed := pkg.Failure(res.ExtraMessage)
		failed.IgnoreFailure = true
		return failed, nil
	}
	changed := res.Changed

	if p.Action != ActionAbsent {
		if p.Mode != "" {
			mres, err := r.Invoke("fs.chmod", ChmodInput{Path: p.Path, Mode: p.Mode}, raw)
			if err != nil {
				return &pkg.Result{}, err
			}
			changed = changed || mres.Changed
		}
		if p.Owner != "" || p.Group != "" {
			ores, err := r.Invoke("fs.chown", ChownInput{Path: p.Path, User: p.Owner, Group: p.Group}, raw)
			if err != nil {
				return &pkg.Result{}, err
			}
			changed = changed || ores.Changed
		}
	}

	if changed && h != nil {
		r.Notify(h)
	}
	return pkg.Changed(changed), nil
}

// Fs builds a single filesystem object.
func Fs(r *pkg.Run, in FsInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.fs", in, opts)
}

// BuilderModule implements fs.builder: fs.fs over a list of items.
type BuilderModule struct{}

func (m BuilderModule) InputType() reflect.Type {
	return reflect.TypeOf(BuilderInput{})
}

func (m BuilderModule) Doc() string {
	return `Carry out a list of filesystem changes. Every item takes the parameters of fs.fs and overrides the defaults item. Item attributes are template variables while the item is built, so paths can refer to each other.

## Examples

` + "```yaml" + `
- task: fs.builder
  defaults:
    owner: root
    group: root
    mode: a=rX,u+w
  items:
    - path: "/tmp/{{ modname }}"
      action: directory
    - path: "/tmp/{{ modname }}/__init__.py"
    - path: /tmp/should-not-exist
      action: absent
    - path: "/tmp/{{ modname }}/site.conf"
      notify: restart apache
` + "```" + `
`
}

func (m BuilderModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"items":    {Description: "The objects to build, each with fs.fs parameters.", Required: &required},
		"defaults": {Description: "Parameters shared by all items, overridden per item.", Required: &notRequired},
	}
}

// BuilderInput defines the parameters for fs.builder. Items are expanded by
// fs.fs one at a time, not up front.
type BuilderInput struct {
	Items    []Item `yaml:"items"`
	Defaults Item   `yaml:"defaults,omitempty"`
}

func (i BuilderInput) Validate() error {
	if len(i.Items) == 0 {
		return fmt.Errorf("items is required")
	}
	return nil
}

// UnmarshalYAML accepts the items as a plain sequence.
func (i *BuilderInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&i.Items)
	}
	type plain BuilderInput
	return node.Decode((*plain)(i))
}

func (m BuilderModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(BuilderInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected BuilderInput, got %T", params)
	}

	changed := false
	for n, item := range p.Items {
		merged := item.Merge(p.Defaults)
		in, err := fsInputFromItem(merged)
		if err != nil {
			return &pkg.Result{}, fmt.Errorf("item %d: %w", n, err)
		}
		err = merged.With(c.Run, func() error {
			res, err := c.Run.Invoke("fs.fs", in)
			if err != nil {
				return err
			}
			changed = changed || res.Changed
			return nil
		})
		if err != nil {
			return &pkg.Result{}, err
		}
	}
	return pkg.Changed(changed), nil
}

// fsInputFromItem maps item attributes onto fs.fs parameters. The notify
// attribute may be a handler or a handler name.
func fsInputFromItem(item Item) (FsInput, error) {
	var in FsInput
	for _, key := range item.keys() {
		if key == "notify" {
			switch h := item[key].(type) {
			case *pkg.Handler:
				in.Handler = h
				continue
			case nil:
				continue
			}
		}
		if key == "mode" {
			if m, ok := item[key].(int); ok {
				in.Mode = fmt.Sprintf("%o", m)
				continue
			}
		}
		s, err := item.String(key)
		if err != nil {
			return in, err
		}
		switch key {
		case "path":
			in.Path = s
		case "action", "state":
			in.Action = s
		case "src":
			in.Src = s
		case "mode":
			in.Mode = s
		case "owner":
			in.Owner = s
		case "group":
			in.Group = s
		case "notify":
			in.Notify = s
		}
	}
	return in, nil
}

// Builder builds every item, each overriding defaults.
func Builder(r *pkg.Run, items []Item, defaults Item, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "fs.builder", BuilderInput{Items: items, Defaults: defaults}, opts)
}

func init() {
	pkg.RegisterModule("fs.fs", FsModule{})
	pkg.RegisterModule("fs.builder", BuilderModule{})
}
