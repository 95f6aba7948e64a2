package pkg

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"github.com/AlexanderGrooff/uplaybook/pkg/config"
	"github.com/google/uuid"
)

// Names of the namespaces that are never bound as plain variables.
const (
	ArgsNamespace     = "ARGS"
	PlatformNamespace = "platform"
	EnvironNamespace  = "environ"
)

// IsReserved reports whether name is one of the fixed namespaces.
func IsReserved(name string) bool {
	switch name {
	case ArgsNamespace, PlatformNamespace, EnvironNamespace:
		return true
	}
	return false
}

// Playbook is a named script body together with where it was found.
type Playbook struct {
	Name        string
	Path        string
	Directory   string
	Description string
	Body        func(r *Run) error
}

// Namespace holds playbook level variable bindings.
type Namespace struct {
	values map[string]interface{}
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{values: make(map[string]interface{})}
}

// Get returns the value bound to name.
func (n *Namespace) Get(name string) (interface{}, bool) {
	v, ok := n.values[name]
	return v, ok
}

// Clone returns a shallow copy.
func (n *Namespace) Clone() *Namespace {
	return &Namespace{values: common.CopyMap(n.values)}
}

// Values returns a copy of all bindings.
func (n *Namespace) Values() map[string]interface{} {
	return common.CopyMap(n.values)
}

// Names returns the bound names sorted.
func (n *Namespace) Names() []string {
	names := make([]string, 0, len(n.values))
	for k := range n.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (n *Namespace) merge(other *Namespace) {
	for k, v := range other.values {
		n.values[k] = v
	}
}

// Run is the state of one playbook execution. It is passed to every task
// invocation explicitly and is not safe for concurrent use.
type Run struct {
	ID       string
	Config   *config.Config
	Out      io.Writer
	Handlers *HandlerRegistry
	Recap    *Recap
	Playbook *Playbook

	platform map[string]interface{}
	environ  map[string]interface{}
	args     map[string]interface{}
	vars     *Namespace
	items    []map[string]interface{}
	call     *CallingContext

	depth          int
	ignoreFailures int
	remainingArgs  []string
	metrics        *runMetrics
	started        time.Time
}

// RunOption customizes a new Run.
type RunOption func(*Run)

// WithOutput sets where status lines are written. Defaults to stdout.
func WithOutput(w io.Writer) RunOption {
	return func(r *Run) {
		r.Out = w
	}
}

// WithRemainingArgs sets the command line arguments left for playbook_args.
func WithRemainingArgs(args []string) RunOption {
	return func(r *Run) {
		r.remainingArgs = append([]string(nil), args...)
	}
}

// WithPlaybook sets the playbook that is being executed.
func WithPlaybook(pb *Playbook) RunOption {
	return func(r *Run) {
		r.Playbook = pb
	}
}

// NewRun creates the context for one execution.
func NewRun(cfg *config.Config, opts ...RunOption) *Run {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Run{
		ID:       uuid.NewString(),
		Config:   cfg,
		Out:      os.Stdout,
		Handlers: NewHandlerRegistry(),
		Recap:    &Recap{},
		platform: PlatformFacts(),
		environ:  environSnapshot(),
		args:     make(map[string]interface{}),
		vars:     NewNamespace(),
		metrics:  newRunMetrics(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	common.SetRunID(r.ID)
	return r
}

func environSnapshot() map[string]interface{} {
	env := make(map[string]interface{})
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func (r *Run) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.Out, format, args...)
}

// Depth is the current nesting depth. Zero at the top level of a playbook.
func (r *Run) Depth() int {
	return r.depth
}

// Set binds a playbook variable, making it visible to later templates.
func (r *Run) Set(name string, value interface{}) error {
	if name == "" {
		return fmt.Errorf("cannot bind an empty variable name")
	}
	if IsReserved(name) {
		return fmt.Errorf("%q is a reserved namespace and cannot be assigned", name)
	}
	r.vars.values[name] = value
	common.LogDebug("Variable bound", map[string]interface{}{
		"name": name,
	})
	return nil
}

// Vars returns the playbook variable namespace.
func (r *Run) Vars() *Namespace {
	return r.vars
}

// SetArg stores a parsed playbook argument under ARGS.
func (r *Run) SetArg(name string, value interface{}) {
	r.args[name] = value
}

// Args returns a copy of the ARGS namespace.
func (r *Run) Args() map[string]interface{} {
	return common.CopyMap(r.args)
}

// RemainingArgs are the command line arguments not consumed yet.
func (r *Run) RemainingArgs() []string {
	return append([]string(nil), r.remainingArgs...)
}

// SetRemainingArgs replaces the unconsumed command line arguments.
func (r *Run) SetRemainingArgs(args []string) {
	r.remainingArgs = append([]string(nil), args...)
}

// Lookup resolves a top level name through every template layer.
func (r *Run) Lookup(name string) (interface{}, bool) {
	v, ok := r.TemplateContext(nil)[name]
	return v, ok
}

// TemplateContext merges the layers, lowest precedence first: platform and
// environ, ARGS, playbook variables, caller locals, item scopes (innermost
// last), then extra.
func (r *Run) TemplateContext(extra map[string]interface{}) map[string]interface{} {
	ctx := map[string]interface{}{
		PlatformNamespace: r.platform,
		EnvironNamespace:  r.environ,
		ArgsNamespace:     r.args,
	}
	for k, v := range r.vars.values {
		ctx[k] = v
	}
	if r.call != nil {
		for k, v := range r.call.Locals {
			ctx[k] = v
		}
	}
	for _, item := range r.items {
		for k, v := range item {
			if !IsReserved(k) {
				ctx[k] = v
			}
		}
	}
	for k, v := range extra {
		if !IsReserved(k) {
			ctx[k] = v
		}
	}
	return ctx
}

// IgnoreFailures runs fn with task failures made non fatal.
func (r *Run) IgnoreFailures(fn func() error) error {
	r.ignoreFailures++
	defer func() { r.ignoreFailures-- }()
	return fn()
}

func (r *Run) ignoringFailures() bool {
	return r.ignoreFailures > 0
}

// WithItem exposes the keys of item to templates while fn runs.
func (r *Run) WithItem(item map[string]interface{}, fn func() error) error {
	r.items = append(r.items, item)
	defer func() { r.items = r.items[:len(r.items)-1] }()
	return fn()
}

// IncludeOption customizes Include.
type IncludeOption func(*includeOptions)

type includeOptions struct {
	hoist bool
}

// NoHoist keeps the variables bound by an included playbook out of the
// includer's namespace.
func NoHoist() IncludeOption {
	return func(o *includeOptions) {
		o.hoist = false
	}
}

// Include runs another playbook in a child namespace that starts as a copy of
// the current one. Its bindings are merged back unless NoHoist is given, also
// when the playbook fails.
func (r *Run) Include(pb *Playbook, opts ...IncludeOption) error {
	if pb == nil || pb.Body == nil {
		return fmt.Errorf("include: playbook has no body")
	}
	o := includeOptions{hoist: true}
	for _, opt := range opts {
		opt(&o)
	}

	parentVars, parentPlaybook := r.vars, r.Playbook
	child := parentVars.Clone()
	r.vars, r.Playbook = child, pb
	common.LogDebug("Including playbook", map[string]interface{}{
		"playbook": pb.Name,
		"hoist":    o.hoist,
	})

	err := pb.Body(r)

	r.vars, r.Playbook = parentVars, parentPlaybook
	if o.hoist {
		parentVars.merge(child)
	}
	if err != nil {
		return fmt.Errorf("include %s: %w", pb.Name, err)
	}
	return nil
}

// PlaybookDir is the directory of the running playbook, "." when unknown.
func (r *Run) PlaybookDir() string {
	if r.Playbook == nil || r.Playbook.Directory == "" {
		return "."
	}
	return r.Playbook.Directory
}
