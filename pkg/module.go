package pkg

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ModuleInput is the parameter struct of a task. Fields tagged
// `up:"template"` are expanded before Execute runs; fields tagged
// `up:"secret"` are redacted in status lines.
type ModuleInput interface {
	Validate() error
}

// Module is a task implementation registered under a dotted name such as
// "fs.mkdir".
type Module interface {
	InputType() reflect.Type
	Execute(params ModuleInput, c *Closure) (*Result, error)
}

// ModuleDocProvider is implemented by modules that document themselves.
type ModuleDocProvider interface {
	Doc() string
}

// ParameterDoc describes one input parameter for `up docs`.
type ParameterDoc struct {
	Description string
	Required    *bool
	Default     string
	Choices     []string
}

// ParameterDocsProvider is implemented by modules with per-parameter docs.
type ParameterDocsProvider interface {
	ParameterDocs() map[string]ParameterDoc
}

var registeredModules = make(map[string]Module)

// RegisterModule allows modules to register themselves by name.
func RegisterModule(name string, module Module) {
	if _, exists := registeredModules[name]; exists {
		panic(fmt.Sprintf("Module %s already registered", name))
	}
	registeredModules[name] = module
}

// GetModule retrieves a registered module by name.
func GetModule(name string) (Module, bool) {
	module, ok := registeredModules[name]
	return module, ok
}

// ModuleNames returns every registered name, sorted.
func ModuleNames() []string {
	names := make([]string, 0, len(registeredModules))
	for name := range registeredModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskName is the part of a module name shown in status lines.
func TaskName(module string) string {
	if i := strings.LastIndex(module, "."); i != -1 {
		return module[i+1:]
	}
	return module
}

// NewInput returns a pointer to a zero value of the module's input type.
func NewInput(m Module) (ModuleInput, error) {
	t := m.InputType()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	p := reflect.New(t)
	if in, ok := p.Interface().(ModuleInput); ok {
		return in, nil
	}
	if in, ok := p.Elem().Interface().(ModuleInput); ok {
		return in, nil
	}
	return nil, fmt.Errorf("input type %s does not implement ModuleInput", t)
}

// Deref returns the struct behind a pointer input so modules can type switch
// on value types regardless of how the input was built.
func Deref(in ModuleInput) ModuleInput {
	v := reflect.ValueOf(in)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		if d, ok := v.Elem().Interface().(ModuleInput); ok {
			return d
		}
	}
	return in
}
