package pkg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultOK(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.OK())
	assert.True(t, Changed(false).OK())
	assert.True(t, Changed(true).OK())
	assert.False(t, Failure("broken").OK())
}

func TestResultNotifyOnlyWhenChanged(t *testing.T) {
	r, _ := newTestRun(t)
	h := NewHandler("h", nil)

	unchanged, err := r.Invoke("test.stub", stubInput{Msg: "same"})
	require.NoError(t, err)
	assert.Same(t, unchanged, unchanged.Notify(h))
	assert.Equal(t, 0, r.Handlers.Len())

	changed, err := r.Invoke("test.stub", stubInput{Msg: "new", Changed: true})
	require.NoError(t, err)
	changed.Notify(h)
	assert.Equal(t, []*Handler{h}, r.Handlers.Pending())

	// Detached results have no registry to queue into.
	Changed(true).Notify(h)
	assert.Equal(t, 1, r.Handlers.Len())
}

func TestResultClose(t *testing.T) {
	closed := 0
	res := Changed(true).WithCloser(func() error {
		closed++
		return errors.New("closing")
	})
	assert.True(t, res.IsScope())
	assert.EqualError(t, res.Close(), "closing")
	assert.NoError(t, res.Close(), "the closer runs once")
	assert.Equal(t, 1, closed)
	assert.False(t, res.IsScope())

	var nilResult *Result
	assert.NoError(t, nilResult.Close())
}

func TestResultAsMap(t *testing.T) {
	res := &Result{
		Changed:      true,
		Output:       "hello\n",
		Extra:        map[string]interface{}{"returncode": 0, "token": "hunter2", "changed": "shadowed"},
		SecretFields: []string{"token"},
		ExtraMessage: "Contents",
	}
	m := res.AsMap()
	assert.Equal(t, true, m["changed"])
	assert.Equal(t, false, m["failed"])
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, "hello\n", m["output"])
	assert.Equal(t, 0, m["returncode"])
	assert.Equal(t, "***", m["token"])
	assert.Equal(t, "Contents", m["extra_message"])

	extra := m["extra"].(map[string]interface{})
	assert.Equal(t, "shadowed", extra["changed"])
	assert.Equal(t, "***", extra["token"])
}

func TestResultString(t *testing.T) {
	res := &Result{Changed: true, Extra: map[string]interface{}{"b": 1, "a": "x"}}
	assert.Equal(t, `Result(changed=true, extra.a="x", extra.b=1)`, res.String())

	res = &Result{Failed: true, ExtraMessage: "no", Output: "short"}
	assert.Equal(t, `Result(changed=false, failed=true, extra_message="no", output="short")`, res.String())
}
