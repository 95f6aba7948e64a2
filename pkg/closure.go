package pkg

import "fmt"

// CallingContext records where a task was invoked from and the caller-local
// bindings that were handed to it.
type CallingContext struct {
	FunctionName string
	File         string
	Line         int
	Locals       map[string]interface{}
}

// Location formats the call site as file:line.
func (cc *CallingContext) Location() string {
	if cc == nil || cc.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", cc.File, cc.Line)
}

// Closure is what a task body sees of the run: the run itself and the calling
// context of the current invocation.
type Closure struct {
	Run  *Run
	Call *CallingContext
}

// GetFacts returns the merged template context for this invocation.
func (c *Closure) GetFacts() map[string]interface{} {
	if c == nil || c.Run == nil {
		return make(map[string]interface{})
	}
	return c.Run.TemplateContext(nil)
}

// GetFact resolves a single name.
func (c *Closure) GetFact(key string) (interface{}, bool) {
	v, ok := c.GetFacts()[key]
	return v, ok
}

// WithExtra returns the merged context with extra bindings on top.
func (c *Closure) WithExtra(extra map[string]interface{}) map[string]interface{} {
	if c == nil || c.Run == nil {
		return extra
	}
	return c.Run.TemplateContext(extra)
}
