package pkg

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeRecordsAndPrints(t *testing.T) {
	r, out := newTestRun(t)

	res, err := r.Invoke("test.stub", stubInput{Msg: "hi", Changed: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.OK())

	_, err = r.Invoke("test.stub", stubInput{Msg: "again"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"=> stub(msg=hi, changed=true, fail=false)",
		"=# stub(msg=again, changed=false, fail=false)",
	}, outputLines(out))
	assert.Equal(t, 2, r.Recap.Total)
	assert.Equal(t, 1, r.Recap.Changed)
	assert.Equal(t, 0, r.Recap.Failed)
	assert.Equal(t, 0, r.Depth())
}

func TestInvokeUnknownModule(t *testing.T) {
	r, _ := newTestRun(t)
	_, err := r.Invoke("test.missing", stubInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module test.missing not found")
	assert.Equal(t, 0, r.Recap.Total)
}

func TestInvokeExpandsTemplatedFields(t *testing.T) {
	r, _ := newTestRun(t)
	require.NoError(t, r.Set("name", "world"))

	res, err := r.Invoke("test.stub", stubInput{Msg: "hello {{ name }}"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Extra["msg"])
}

func TestInvokeDoesNotExpandTwice(t *testing.T) {
	r, _ := newTestRun(t)
	require.NoError(t, r.Set("tricky", "{{ not_a_var }}"))

	res, err := r.Invoke("test.stub", stubInput{Msg: "{{ tricky }}"})
	require.NoError(t, err)
	assert.Equal(t, "{{ not_a_var }}", res.Extra["msg"])
}

func TestInvokeUndefinedVariable(t *testing.T) {
	r, out := newTestRun(t)

	res, err := r.Invoke("test.stub", stubInput{Msg: "{{ missing }}"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUndefinedVariable))
	assert.True(t, errors.Is(err, ErrTaskFailure))
	assert.False(t, res.OK())
	assert.True(t, strings.HasPrefix(out.String(), "=! stub("))
	assert.True(t, r.Recap.Fatal())

	res, err = r.Invoke("test.stub", stubInput{Msg: "{{ missing | default('fallback') }}"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Extra["msg"])
}

func TestInvokeRawArgs(t *testing.T) {
	r, _ := newTestRun(t)

	res, err := r.Invoke("test.stub", stubInput{Msg: "/srv/{{ literal }}"}, RawArgs("msg"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/{{ literal }}", res.Extra["msg"])
}

func TestInvokeValidationFailure(t *testing.T) {
	r, _ := newTestRun(t)
	_, err := r.Invoke("test.stub", stubInput{Msg: "invalid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid parameters")
}

func TestInvokeIgnoreFailures(t *testing.T) {
	r, out := newTestRun(t)

	var res *Result
	err := r.IgnoreFailures(func() error {
		var err error
		res, err = r.Invoke("test.stub", stubInput{Msg: "x", Fail: true})
		return err
	})
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.False(t, res.OK())
	assert.Equal(t, "=! stub(msg=x, changed=false, fail=true) (failure ignored)", strings.TrimSpace(out.String()))
	assert.Equal(t, 1, r.Recap.Failed)
	assert.Equal(t, 1, r.Recap.Ignored)
	assert.False(t, r.Recap.Fatal())

	// Per call.
	res, err = r.Invoke("test.stub", stubInput{Err: "boom"}, IgnoreFailure())
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.False(t, r.Recap.Fatal())
}

func TestInvokeFatalFailure(t *testing.T) {
	r, out := newTestRun(t)

	res, err := r.Invoke("test.stub", stubInput{Err: "boom"})
	require.Error(t, err)

	var failure *TaskFailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "test.stub", failure.Task)
	assert.Equal(t, "boom", res.Extra["error"])
	assert.Equal(t, "=! stub(changed=false, fail=false, err=boom) (boom)", strings.TrimSpace(out.String()))
	assert.True(t, r.Recap.Fatal())
}

func TestInvokeContractViolation(t *testing.T) {
	r, _ := newTestRun(t)

	err := r.IgnoreFailures(func() error {
		_, err := r.Invoke("test.nil", emptyInput{})
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContractViolation))
	assert.True(t, r.Recap.Fatal())
}

func TestInvokeRecoversPanic(t *testing.T) {
	r, _ := newTestRun(t)

	res, err := r.Invoke("test.panic", emptyInput{})
	require.Error(t, err)
	assert.False(t, res.OK())
	assert.Contains(t, res.Err.Error(), "kaboom")
	assert.Equal(t, 0, r.Depth())
}

func TestInvokeNestedDepth(t *testing.T) {
	r, out := newTestRun(t)

	res, err := r.Invoke("test.nested", nestedInput{Inner: "deep", Changed: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{
		"==> stub(msg=deep, changed=true, fail=false)",
		"=> nested(inner=deep, changed=true)",
	}, outputLines(out))
	assert.Equal(t, 2, r.Recap.Total)
	assert.Equal(t, 0, r.Depth())
}

func TestInvokeLocals(t *testing.T) {
	r, _ := newTestRun(t)

	res, err := r.Invoke("test.stub", stubInput{Msg: "{{ who }}"}, WithLocals(map[string]interface{}{"who": "bob"}))
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Extra["msg"])

	// Triggered tasks see the locals of the call that triggered them.
	res, err = r.Invoke("test.nested", nestedInput{Inner: "{{ who }}"}, WithLocals(map[string]interface{}{"who": "alice"}))
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Extra["inner"])

	// Locals never shadow the fixed namespaces.
	res, err = r.Invoke("test.stub", stubInput{Msg: "{{ platform.arch }}"}, WithLocals(map[string]interface{}{"platform": "fake"}))
	require.NoError(t, err)
	assert.NotEqual(t, "fake", res.Extra["msg"])

	_, ok := r.Lookup("who")
	assert.False(t, ok, "locals do not outlive the call")
}

func TestInvokeSecrets(t *testing.T) {
	r, out := newTestRun(t)

	_, err := r.Invoke("test.stub", stubInput{Msg: "visible", Token: "hunter2"})
	require.NoError(t, err)
	_, err = r.Invoke("test.stub", stubInput{Msg: "hidden"}, Secret("msg"))
	require.NoError(t, err)

	lines := outputLines(out)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "token=***")
	assert.NotContains(t, lines[0], "hunter2")
	assert.Contains(t, lines[1], "msg=***")
}

func TestInvokeExit(t *testing.T) {
	r, out := newTestRun(t)

	res, err := r.Invoke("test.exit", exitInput{Code: 0})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 0, exitErr.Code)
	assert.False(t, res.Failed)
	assert.False(t, r.Recap.Fatal())

	res, err = r.Invoke("test.exit", exitInput{Code: 3})
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, ExitCode(err))
	assert.True(t, res.Failed)

	lines := outputLines(out)
	require.Len(t, lines, 2)
	assert.Equal(t, "=# exit(code=0) (bye)", lines[0])
	assert.Equal(t, "=! exit(code=3) (bye)", lines[1])
}

func TestInvokeRecordsCallSite(t *testing.T) {
	r, _ := newTestRun(t)

	_, err := r.Invoke("test.callsite", emptyInput{}, At("site.pb", 12))
	require.NoError(t, err)
	assert.Equal(t, "site.pb:12", lastCallSite)

	_, err = r.Invoke("test.callsite", emptyInput{})
	require.NoError(t, err)
	assert.Contains(t, lastCallSite, "task_test.go:")
}

var lastCallSite string

type callSiteModule struct{}

func (m callSiteModule) InputType() reflect.Type { return reflect.TypeOf(emptyInput{}) }

func (m callSiteModule) Execute(params ModuleInput, c *Closure) (*Result, error) {
	lastCallSite = c.Call.Location()
	return Changed(false), nil
}

func init() {
	RegisterModule("test.callsite", callSiteModule{})
}

func TestStatusLine(t *testing.T) {
	testCases := []struct {
		name     string
		depth    int
		res      *Result
		note     string
		ignored  bool
		expected string
	}{
		{"unchanged", 0, &Result{}, "", false, "=# mkdir(path=d)"},
		{"changed", 0, &Result{Changed: true}, "", false, "=> mkdir(path=d)"},
		{"nested", 2, &Result{Changed: true}, "", false, "===> mkdir(path=d)"},
		{"note", 0, &Result{Changed: true}, "Permissions", false, "=> mkdir(path=d) (Permissions)"},
		{"failed", 1, &Result{Failed: true}, "nope", false, "==! mkdir(path=d) (nope)"},
		{"ignored", 0, &Result{Failed: true, Changed: true}, "", true, "=! mkdir(path=d) (failure ignored)"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, StatusLine(tc.depth, "mkdir", "path=d", tc.res, tc.note, tc.ignored))
		})
	}
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t, "msg=a, changed=false, fail=false", FormatArgs(stubInput{Msg: "a"}, nil))
	assert.Equal(t, "msg=***, changed=false, fail=false", FormatArgs(&stubInput{Msg: "a"}, []string{"msg"}))
	assert.Equal(t, "", FormatArgs(nil, nil))
	assert.Equal(t, "", FormatArgs((*stubInput)(nil), nil))
}
