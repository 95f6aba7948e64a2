package pkg

import (
	"errors"
	"fmt"
	"reflect"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/AlexanderGrooff/uplaybook/pkg/common"
)

const secretToken = "***"

// InvokeOption customizes a single task invocation.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	locals        map[string]interface{}
	ignoreFailure bool
	raw           map[string]bool
	secret        []string
	callerSkip    int
	file          string
	line          int
}

// WithLocals hands the caller's local bindings to the invocation. They are
// visible to template expansion of this call and of every task it triggers.
func WithLocals(vars map[string]interface{}) InvokeOption {
	return func(o *invokeOptions) {
		o.locals = vars
	}
}

// IgnoreFailure makes a failure of this call non fatal.
func IgnoreFailure() InvokeOption {
	return func(o *invokeOptions) {
		o.ignoreFailure = true
	}
}

// RawArgs disables template expansion for the named parameters.
func RawArgs(fields ...string) InvokeOption {
	return func(o *invokeOptions) {
		for _, f := range fields {
			o.raw[f] = true
		}
	}
}

// Secret redacts the named parameters in the status line.
func Secret(fields ...string) InvokeOption {
	return func(o *invokeOptions) {
		o.secret = append(o.secret, fields...)
	}
}

// CallerSkip adds frames to skip when recording the call site, for helpers
// that wrap Invoke.
func CallerSkip(n int) InvokeOption {
	return func(o *invokeOptions) {
		o.callerSkip += n
	}
}

// At records file:line as the call site instead of the Go caller, for tasks
// that come from a playbook file.
func At(file string, line int) InvokeOption {
	return func(o *invokeOptions) {
		o.file, o.line = file, line
	}
}

// Invoke runs the task registered as name. The call is template expanded,
// executed one nesting level deeper, recorded in the recap and printed as a
// status line. A failure outside an ignore-failures scope is returned as a
// *TaskFailureError; a failure that is ignored leaves the error nil and the
// Result not OK.
func (r *Run) Invoke(name string, input ModuleInput, opts ...InvokeOption) (*Result, error) {
	module, ok := GetModule(name)
	if !ok {
		return nil, fmt.Errorf("module %s not found", name)
	}
	o := invokeOptions{raw: make(map[string]bool), callerSkip: 1}
	for _, opt := range opts {
		opt(&o)
	}

	call := &CallingContext{FunctionName: name, Locals: inheritLocals(r.call, r.filterLocals(o.locals))}
	if o.file != "" {
		call.File, call.Line = o.file, o.line
	} else if _, file, line, ok := goruntime.Caller(o.callerSkip); ok {
		call.File, call.Line = file, line
	}
	prevCall := r.call
	r.call = call
	defer func() { r.call = prevCall }()

	preDepth := r.depth
	start := time.Now()

	displayed := input
	res, err := r.execute(module, name, input, o, call, &displayed)
	duration := time.Since(start)

	if res == nil {
		// Nothing usable came back: this is a bug in the task, never ignorable.
		violation := fmt.Errorf("%w: task %s returned no result", ErrContractViolation, name)
		if err != nil {
			violation = fmt.Errorf("%w: %v", violation, err)
		}
		res = &Result{Failed: true, Err: violation}
		r.Recap.record(res, false)
		r.printStatus(preDepth, name, displayed, res, o, false)
		r.metrics.observe(name, res, false, duration)
		return res, violation
	}
	res.registry = r.Handlers

	var exitErr *ExitError
	isExit := errors.As(err, &exitErr)
	switch {
	case isExit:
		// Only a non-zero exit is a failure.
		res.Err = err
		res.Failed = res.Failed || exitErr.Code != 0
		if res.ExtraMessage == "" {
			res.ExtraMessage = exitErr.Msg
		}
	case err != nil:
		res.Failed = true
		res.Err = err
		if res.Extra == nil {
			res.Extra = make(map[string]interface{})
		}
		res.Extra["error"] = err.Error()
	}

	ignored := !isExit && (res.IgnoreFailure || o.ignoreFailure || r.ignoringFailures())

	r.Recap.record(res, ignored)
	r.printStatus(preDepth, name, displayed, res, o, ignored)
	r.metrics.observe(name, res, ignored, duration)

	common.LogDebug("Task finished", map[string]interface{}{
		"task":     name,
		"location": call.Location(),
		"changed":  res.Changed,
		"failed":   res.Failed,
		"ignored":  ignored,
		"depth":    preDepth,
		"duration": duration.String(),
	})

	switch {
	case isExit:
		return res, exitErr
	case res.Failed && !ignored:
		return res, &TaskFailureError{Task: name, Result: res, Err: res.Err}
	}
	return res, nil
}

// execute expands, validates and runs the task body one level deeper than
// the caller. Panics in the body become errors.
func (r *Run) execute(module Module, name string, input ModuleInput, o invokeOptions, call *CallingContext, displayed *ModuleInput) (res *Result, err error) {
	expanded, err := ExpandInput(input, r.TemplateContext(nil), o.raw)
	if err != nil {
		return &Result{}, err
	}
	*displayed = expanded
	if err := expanded.Validate(); err != nil {
		return &Result{}, fmt.Errorf("invalid parameters: %w", err)
	}

	r.depth++
	defer func() {
		r.depth--
		if p := recover(); p != nil {
			res = &Result{}
			err = fmt.Errorf("task %s panicked: %v", name, p)
		}
	}()
	return module.Execute(expanded, &Closure{Run: r, Call: call})
}

func (r *Run) filterLocals(locals map[string]interface{}) map[string]interface{} {
	if len(locals) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(locals))
	for k, v := range locals {
		if IsReserved(k) {
			common.LogWarn("Ignoring local that shadows a reserved namespace", map[string]interface{}{
				"name": k,
			})
			continue
		}
		out[k] = v
	}
	return out
}

// inheritLocals layers the locals of a nested call over the ones of the task
// that triggered it.
func inheritLocals(parent *CallingContext, locals map[string]interface{}) map[string]interface{} {
	if parent == nil || len(parent.Locals) == 0 {
		return locals
	}
	merged := common.CopyMap(parent.Locals)
	for k, v := range locals {
		merged[k] = v
	}
	return merged
}

// FormatArgs renders the parameters of input for a status line. Empty
// optional values are left out and secret parameters are redacted.
func FormatArgs(input ModuleInput, secrets []string) string {
	if input == nil {
		return ""
	}
	v := reflect.ValueOf(input)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Sprintf("%v", input)
	}

	isSecret := func(name string) bool {
		for _, s := range secrets {
			if s == name {
				return true
			}
		}
		return false
	}

	var parts []string
	for i := 0; i < v.NumField(); i++ {
		sf := v.Type().Field(i)
		if sf.PkgPath != "" || sf.Tag.Get("yaml") == "-" {
			continue
		}
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.String, reflect.Slice, reflect.Map:
			if fv.Len() == 0 {
				continue
			}
		case reflect.Ptr, reflect.Interface:
			if fv.IsNil() {
				continue
			}
		case reflect.Func, reflect.Chan:
			continue
		}
		name := FieldName(sf)
		if isSecret(name) || fieldTags(sf)["secret"] {
			parts = append(parts, name+"="+secretToken)
			continue
		}
		parts = append(parts, name+"="+formatValue(fv))
	}
	return strings.Join(parts, ", ")
}

func formatValue(v reflect.Value) string {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}

func (r *Run) printStatus(depth int, name string, input ModuleInput, res *Result, o invokeOptions, ignored bool) {
	var args string
	if res.HideArgs {
		args = "..."
	} else {
		args = FormatArgs(input, append(append([]string(nil), o.secret...), res.SecretFields...))
	}

	note := res.ExtraMessage
	if note == "" && res.Failed && res.Err != nil {
		note = res.Err.Error()
	}
	r.printf("%s\n", StatusLine(depth, TaskName(name), args, res, note, ignored))
	if res.Output != "" {
		r.printf("%s\n", res.Output)
	}
}

// StatusLine formats one status line.
func StatusLine(depth int, task, args string, res *Result, note string, ignored bool) string {
	marker := "=#"
	if res.Changed {
		marker = "=>"
	}
	if res.Failed {
		marker = "=!"
	}
	var b strings.Builder
	b.WriteString(strings.Repeat("=", depth))
	b.WriteString(marker)
	b.WriteString(" ")
	b.WriteString(task)
	b.WriteString("(")
	b.WriteString(args)
	b.WriteString(")")
	if note != "" {
		b.WriteString(" (" + note + ")")
	}
	if res.Failed && ignored {
		b.WriteString(" (failure ignored)")
	}
	return b.String()
}
