package modules

import (
	"fmt"
	"reflect"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"gopkg.in/yaml.v3"
)

// NotifyModule implements core.notify: queue a handler without a triggering
// change.
type NotifyModule struct{}

func (m NotifyModule) InputType() reflect.Type {
	return reflect.TypeOf(NotifyInput{})
}

func (m NotifyModule) Doc() string {
	return `Queue a handler to be run at the next flush, whether or not anything changed.

## Examples

` + "```yaml" + `
- task: core.notify
  handler: restart apache
` + "```" + `
`
}

// NotifyInput names the handler to queue. From Go the handler itself can be
// passed.
type NotifyInput struct {
	Name    string       `yaml:"handler" up:"template"`
	Handler *pkg.Handler `yaml:"-"`
}

func (i NotifyInput) Validate() error {
	if i.Handler == nil && i.Name == "" {
		return fmt.Errorf("handler is required")
	}
	return nil
}

// UnmarshalYAML accepts the handler name as a plain scalar.
func (i *NotifyInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Name = node.Value
		return nil
	}
	type plain NotifyInput
	return node.Decode((*plain)(i))
}

func (m NotifyModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(NotifyInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected NotifyInput, got %T", params)
	}
	h := p.Handler
	if h == nil {
		var found bool
		if h, found = c.Run.Handlers.Lookup(p.Name); !found {
			return &pkg.Result{}, fmt.Errorf("no handler named %q", p.Name)
		}
	}
	c.Run.Handlers.Register(h)
	return pkg.Changed(false), nil
}

// FlushHandlersModule implements core.flush_handlers.
type FlushHandlersModule struct{}

func (m FlushHandlersModule) InputType() reflect.Type {
	return reflect.TypeOf(FlushHandlersInput{})
}

func (m FlushHandlersModule) Doc() string {
	return `Run every handler that is pending now. Handlers notified while flushing wait for the next flush.`
}

// FlushHandlersInput takes no parameters.
type FlushHandlersInput struct{}

func (i FlushHandlersInput) Validate() error {
	return nil
}

func (m FlushHandlersModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	if err := c.Run.FlushHandlers(); err != nil {
		return &pkg.Result{}, err
	}
	return pkg.Changed(false), nil
}

// Notify queues h for the next flush.
func Notify(r *pkg.Run, h *pkg.Handler, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	in := NotifyInput{Handler: h}
	if h != nil {
		in.Name = h.Name
	}
	return invoke(r, "core.notify", in, append(opts[:len(opts):len(opts)], pkg.RawArgs("handler")))
}

// FlushHandlers runs the pending handlers as a task.
func FlushHandlers(r *pkg.Run, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.flush_handlers", FlushHandlersInput{}, opts)
}

func init() {
	pkg.RegisterModule("core.notify", NotifyModule{})
	pkg.RegisterModule("core.flush_handlers", FlushHandlersModule{})
}
