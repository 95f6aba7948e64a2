package pkg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg/common"
)

// Result is what every task invocation produces.
type Result struct {
	Changed bool
	Failed  bool
	// Output is printed below the status line, e.g. the stdout of a command.
	Output string
	// ExtraMessage is shown in parentheses after the arguments.
	ExtraMessage string
	Extra        map[string]interface{}
	// SecretFields lists argument or extra names that render as "***".
	SecretFields []string
	// HideArgs replaces the argument list in the status line with "...".
	HideArgs bool
	// IgnoreFailure makes a failure of this single result non fatal.
	IgnoreFailure bool
	// Err is the error raised by the task body, if any.
	Err error

	closer   func() error
	registry *HandlerRegistry
}

// Changed returns an unchanged or changed result.
func Changed(changed bool) *Result {
	return &Result{Changed: changed}
}

// Failure returns a failed result with the given message as extra note.
func Failure(msg string) *Result {
	return &Result{Failed: true, ExtraMessage: msg}
}

// OK reports whether the task did not fail. Lack of change is still OK.
func (r *Result) OK() bool {
	return r != nil && !r.Failed
}

// WithCloser makes the result usable as a scope: Close runs fn.
func (r *Result) WithCloser(fn func() error) *Result {
	r.closer = fn
	return r
}

// Close ends the scope a context manager style task opened. It is a no-op for
// results without a closer.
func (r *Result) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	fn := r.closer
	r.closer = nil
	return fn()
}

// IsScope reports whether the result carries a closer.
func (r *Result) IsScope() bool {
	return r != nil && r.closer != nil
}

// Notify queues handlers when the result changed something. It never enqueues
// for unchanged results and returns r for chaining.
func (r *Result) Notify(handlers ...*Handler) *Result {
	if r == nil || !r.Changed {
		return r
	}
	if r.registry == nil {
		common.LogWarn("Result is not attached to a run, dropping notify", map[string]interface{}{
			"handlers": handlerNames(handlers),
		})
		return r
	}
	r.registry.RegisterMany(handlers)
	return r
}

// Get returns a value from Extra.
func (r *Result) Get(key string) (interface{}, bool) {
	if r == nil || r.Extra == nil {
		return nil, false
	}
	v, ok := r.Extra[key]
	return v, ok
}

func (r *Result) isSecret(name string) bool {
	for _, f := range r.SecretFields {
		if f == name {
			return true
		}
	}
	return false
}

// AsMap exposes the result to templates when it is registered as a variable.
func (r *Result) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"changed": r.Changed,
		"failed":  r.Failed,
		"ok":      r.OK(),
		"output":  r.Output,
	}
	extra := make(map[string]interface{}, len(r.Extra))
	for k, v := range r.Extra {
		if r.isSecret(k) {
			v = secretToken
		}
		extra[k] = v
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	m["extra"] = extra
	if r.ExtraMessage != "" {
		m["extra_message"] = r.ExtraMessage
	}
	return m
}

func (r *Result) String() string {
	values := []string{fmt.Sprintf("changed=%t", r.Changed)}
	if r.Failed {
		values = append(values, "failed=true")
	}
	if r.ExtraMessage != "" {
		values = append(values, fmt.Sprintf("extra_message=%q", r.ExtraMessage))
	}
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := r.Extra[k]
		if r.isSecret(k) {
			v = secretToken
		}
		values = append(values, fmt.Sprintf("extra.%s=%#v", k, v))
	}
	if r.Output != "" {
		if len(r.Output) < 60 || strings.Count(r.Output, "\n") < 4 {
			values = append(values, fmt.Sprintf("output=%q", r.Output))
		} else {
			return fmt.Sprintf("Result(%s,\noutput=\"\"\"\n%s\"\"\")", strings.Join(values, ", "), r.Output)
		}
	}
	return fmt.Sprintf("Result(%s)", strings.Join(values, ", "))
}
