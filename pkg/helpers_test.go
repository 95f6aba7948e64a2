package pkg

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/AlexanderGrooff/uplaybook/pkg/config"
)

// stubInput drives stubModule: it reports whatever it is told to.
type stubInput struct {
	Msg     string `yaml:"msg" up:"template"`
	Changed bool   `yaml:"changed"`
	Fail    bool   `yaml:"fail"`
	Err     string `yaml:"err,omitempty"`
	Token   string `yaml:"token,omitempty" up:"template,secret"`
}

func (i stubInput) Validate() error {
	if i.Msg == "invalid" {
		return errors.New("msg must not be invalid")
	}
	return nil
}

type stubModule struct{}

func (m stubModule) InputType() reflect.Type { return reflect.TypeOf(stubInput{}) }

func (m stubModule) Execute(params ModuleInput, c *Closure) (*Result, error) {
	p := Deref(params).(stubInput)
	if p.Err != "" {
		return &Result{}, errors.New(p.Err)
	}
	return &Result{
		Changed: p.Changed,
		Failed:  p.Fail,
		Extra:   map[string]interface{}{"msg": p.Msg},
	}, nil
}

// nestedInput runs stub with Inner as its msg from inside a task body.
type nestedInput struct {
	Inner   string `yaml:"inner"`
	Changed bool   `yaml:"changed,omitempty"`
}

func (i nestedInput) Validate() error { return nil }

type nestedModule struct{}

func (m nestedModule) InputType() reflect.Type { return reflect.TypeOf(nestedInput{}) }

func (m nestedModule) Execute(params ModuleInput, c *Closure) (*Result, error) {
	p := Deref(params).(nestedInput)
	inner, err := c.Run.Invoke("test.stub", stubInput{Msg: p.Inner, Changed: p.Changed})
	if err != nil {
		return &Result{}, err
	}
	return &Result{Changed: inner.Changed, Extra: map[string]interface{}{"inner": inner.Extra["msg"]}}, nil
}

type emptyInput struct{}

func (i emptyInput) Validate() error { return nil }

type nilModule struct{}

func (m nilModule) InputType() reflect.Type { return reflect.TypeOf(emptyInput{}) }

func (m nilModule) Execute(params ModuleInput, c *Closure) (*Result, error) { return nil, nil }

type panicModule struct{}

func (m panicModule) InputType() reflect.Type { return reflect.TypeOf(emptyInput{}) }

func (m panicModule) Execute(params ModuleInput, c *Closure) (*Result, error) {
	panic("kaboom")
}

type exitInput struct {
	Code int `yaml:"code"`
}

func (i exitInput) Validate() error { return nil }

type exitModule struct{}

func (m exitModule) InputType() reflect.Type { return reflect.TypeOf(exitInput{}) }

func (m exitModule) Execute(params ModuleInput, c *Closure) (*Result, error) {
	p := Deref(params).(exitInput)
	return &Result{}, &ExitError{Code: p.Code, Msg: "bye"}
}

func init() {
	RegisterModule("test.stub", stubModule{})
	RegisterModule("test.nested", nestedModule{})
	RegisterModule("test.nil", nilModule{})
	RegisterModule("test.panic", panicModule{})
	RegisterModule("test.exit", exitModule{})
}

func newTestRun(t *testing.T, opts ...RunOption) (*Run, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r := NewRun(config.Default(), append([]RunOption{WithOutput(&out)}, opts...)...)
	return r, &out
}

func outputLines(out *bytes.Buffer) []string {
	s := strings.TrimRight(out.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
