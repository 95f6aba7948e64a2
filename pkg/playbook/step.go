package playbook

import (
	"fmt"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/modules"
	"gopkg.in/yaml.v3"
)

// Step kinds. Exactly one of these keys makes up a step.
const (
	kindTask           = "task"
	kindSet            = "set"
	kindInclude        = "include"
	kindFlushHandlers  = "flush_handlers"
	kindIgnoreFailures = "ignore_failures"
	kindBlock          = "block"
	kindItem           = "item"
	kindItems          = "items"
	kindCd             = "cd"
	kindBecome         = "become"
	kindArgs           = "args"
	kindExit           = "exit"
)

var stepKinds = []string{
	kindTask, kindSet, kindInclude, kindFlushHandlers, kindIgnoreFailures, kindBlock,
	kindItem, kindItems, kindCd, kindBecome, kindArgs, kindExit,
}

// Keys every step may carry next to its kind.
var stepOptions = map[string]bool{
	"name":     true,
	"when":     true,
	"register": true,
	"notify":   true,
	"vars":     true,
	"raw":      true,
}

// Step is one entry of a playbook.
type Step struct {
	Kind string
	Name string
	Line int

	When     string
	Register string
	Notify   []string
	Vars     map[string]interface{}
	Raw      []string

	// Task is the module a task step invokes.
	Task  string
	Input pkg.ModuleInput

	Include string
	Hoist   bool
	// Item holds the attributes of an item step, Items those of an items loop.
	Item  map[string]interface{}
	Items []map[string]interface{}
	Steps []*Step
}

type parser struct {
	file string
}

func (p *parser) errorf(node *yaml.Node, format string, args ...interface{}) error {
	return fmt.Errorf("%s:%d: %s", p.file, node.Line, fmt.Sprintf(format, args...))
}

func isKind(key string) bool {
	for _, k := range stepKinds {
		if k == key {
			return true
		}
	}
	return false
}

// steps parses a sequence of steps. A nil or empty node has none.
func (p *parser) steps(node *yaml.Node) ([]*Step, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, p.errorf(node, "steps must be a list")
	}
	out := make([]*Step, 0, len(node.Content))
	for _, child := range node.Content {
		s, err := p.step(child)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

type namedHandler struct {
	handler *pkg.Handler
	steps   []*Step
}

// handlers parses the "handlers" mapping of handler name to steps, keeping
// the order of the file.
func (p *parser) handlers(node *yaml.Node) ([]namedHandler, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "handlers must map names to steps")
	}
	var out []namedHandler
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, body := node.Content[i].Value, node.Content[i+1]
		if body.Kind == yaml.MappingNode {
			body = &yaml.Node{Kind: yaml.SequenceNode, Line: body.Line, Content: []*yaml.Node{body}}
		}
		steps, err := p.steps(body)
		if err != nil {
			return nil, err
		}
		out = append(out, namedHandler{handler: pkg.NewHandler(name, nil), steps: steps})
	}
	return out, nil
}

func (p *parser) step(node *yaml.Node) (*Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "a step must be a mapping")
	}
	s := &Step{Line: node.Line, Hoist: true}
	var kindValue *yaml.Node
	extra := map[string]*yaml.Node{}
	var args []*yaml.Node

	// In a task step every other key is a parameter, even one that names a
	// step kind such as "items".
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == kindTask {
			s.Kind, kindValue = kindTask, node.Content[i+1]
		}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch {
		case s.Kind == kindTask && key.Value == kindTask:
			continue
		case s.Kind != kindTask && isKind(key.Value):
			if s.Kind != "" {
				return nil, p.errorf(key, "step has both %s and %s", s.Kind, key.Value)
			}
			s.Kind, kindValue = key.Value, value
		case stepOptions[key.Value]:
			if err := p.option(s, key.Value, value); err != nil {
				return nil, err
			}
		default:
			extra[key.Value] = value
			args = append(args, key, value)
		}
	}
	if s.Kind == "" {
		return nil, p.errorf(node, "step needs one of: %s", strings.Join(stepKinds, ", "))
	}

	switch s.Kind {
	case kindTask:
		return s, p.taskStep(s, kindValue, args)
	case kindInclude:
		s.Include = kindValue.Value
		if hoist, ok := extra["hoist"]; ok {
			if err := hoist.Decode(&s.Hoist); err != nil {
				return nil, p.errorf(hoist, "hoist: %v", err)
			}
			delete(extra, "hoist")
		}
	case kindIgnoreFailures, kindBlock:
		steps, err := p.steps(kindValue)
		if err != nil {
			return nil, err
		}
		s.Steps = steps
	case kindItem, kindItems, kindCd, kindBecome:
		body, ok := extra["steps"]
		if !ok && (s.Kind == kindItem || s.Kind == kindItems) {
			return nil, p.errorf(node, "%s needs steps", s.Kind)
		}
		delete(extra, "steps")
		steps, err := p.steps(body)
		if err != nil {
			return nil, err
		}
		s.Steps = steps
		if err := p.scopeValue(s, kindValue); err != nil {
			return nil, err
		}
	default:
		in, err := p.kindInput(s.Kind, kindValue)
		if err != nil {
			return nil, err
		}
		s.Input = in
	}
	for key, value := range extra {
		return nil, p.errorf(value, "unknown key %s in %s step", key, s.Kind)
	}
	return s, nil
}

func (p *parser) option(s *Step, key string, value *yaml.Node) error {
	var err error
	switch key {
	case "name":
		s.Name = value.Value
	case "when":
		s.When = value.Value
	case "register":
		s.Register = value.Value
	case "notify":
		if value.Kind == yaml.ScalarNode {
			s.Notify = []string{value.Value}
		} else {
			err = value.Decode(&s.Notify)
		}
	case "vars":
		err = value.Decode(&s.Vars)
	case "raw":
		err = value.Decode(&s.Raw)
	}
	if err != nil {
		return p.errorf(value, "%s: %v", key, err)
	}
	return nil
}

// taskStep decodes the remaining keys of a task step into the input of the
// named module.
func (p *parser) taskStep(s *Step, name *yaml.Node, args []*yaml.Node) error {
	s.Task = name.Value
	module, ok := pkg.GetModule(s.Task)
	if !ok {
		return p.errorf(name, "module %s not found", s.Task)
	}
	in, err := pkg.NewInput(module)
	if err != nil {
		return p.errorf(name, "%v", err)
	}
	params := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Line: name.Line, Content: args}
	if err := params.Decode(in); err != nil {
		return p.errorf(name, "failed to decode parameters for %s: %v", s.Task, err)
	}
	s.Input = in
	return nil
}

// kindInput decodes the value of a shorthand step into its task input.
func (p *parser) kindInput(kind string, value *yaml.Node) (pkg.ModuleInput, error) {
	var in pkg.ModuleInput
	var err error
	switch kind {
	case kindSet:
		var set modules.SetInput
		err = value.Decode(&set)
		in = set
	case kindArgs:
		var args modules.PlaybookArgsInput
		err = value.Decode(&args)
		in = args
	case kindExit:
		var exit modules.ExitInput
		if value.Kind == yaml.ScalarNode {
			err = value.Decode(&exit.ReturnCode)
		} else {
			err = value.Decode(&exit)
		}
		in = exit
	case kindFlushHandlers:
		in = modules.FlushHandlersInput{}
	}
	if err != nil {
		return nil, p.errorf(value, "%s: %v", kind, err)
	}
	return in, nil
}

// scopeValue decodes what an item, items, cd or become step opens.
func (p *parser) scopeValue(s *Step, value *yaml.Node) error {
	var err error
	switch s.Kind {
	case kindItem:
		err = value.Decode(&s.Item)
	case kindItems:
		err = value.Decode(&s.Items)
	case kindCd:
		var cd modules.CdInput
		err = value.Decode(&cd)
		s.Input = cd
	case kindBecome:
		var become modules.UserInput
		if value.Kind == yaml.ScalarNode {
			become.User = value.Value
		} else {
			err = value.Decode(&become)
		}
		s.Input = become
	}
	if err != nil {
		return p.errorf(value, "%s: %v", s.Kind, err)
	}
	return nil
}
