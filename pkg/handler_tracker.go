package pkg

import (
	"fmt"

	"github.com/AlexanderGrooff/uplaybook/pkg/common"
)

// Handler is a deferred callback. Its identity is the pointer: two handlers
// built from the same function are still two distinct handlers.
type Handler struct {
	Name string
	Fn   func(r *Run) error
}

// NewHandler creates a handler with a display name.
func NewHandler(name string, fn func(r *Run) error) *Handler {
	return &Handler{Name: name, Fn: fn}
}

func handlerNames(handlers []*Handler) []string {
	names := make([]string, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			names = append(names, h.Name)
		}
	}
	return names
}

// HandlerRegistry is the ordered, deduplicated queue of pending handlers.
type HandlerRegistry struct {
	pending []*Handler
	queued  map[*Handler]struct{}
	// defined maps names to handlers so playbooks can notify by name.
	defined map[string]*Handler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		queued:  make(map[*Handler]struct{}),
		defined: make(map[string]*Handler),
	}
}

// Define makes h notifiable by its name. Defining a name twice fails.
func (hr *HandlerRegistry) Define(h *Handler) error {
	if h == nil || h.Name == "" {
		return fmt.Errorf("handler needs a name to be defined")
	}
	if _, exists := hr.defined[h.Name]; exists {
		return fmt.Errorf("handler %s already defined", h.Name)
	}
	hr.defined[h.Name] = h
	return nil
}

// Lookup returns the handler defined under name.
func (hr *HandlerRegistry) Lookup(name string) (*Handler, bool) {
	h, ok := hr.defined[name]
	return h, ok
}

// Register queues h unless it is already pending.
func (hr *HandlerRegistry) Register(h *Handler) {
	if h == nil {
		return
	}
	if _, exists := hr.queued[h]; exists {
		common.LogDebug("Handler already pending", map[string]interface{}{
			"handler": h.Name,
		})
		return
	}
	hr.queued[h] = struct{}{}
	hr.pending = append(hr.pending, h)
	common.LogDebug("Handler notified", map[string]interface{}{
		"handler": h.Name,
		"pending": len(hr.pending),
	})
}

// RegisterMany registers each handler in order.
func (hr *HandlerRegistry) RegisterMany(handlers []*Handler) {
	for _, h := range handlers {
		hr.Register(h)
	}
}

// Notify queues handlers directly, without a triggering change.
func (r *Run) Notify(handlers ...*Handler) {
	r.Handlers.RegisterMany(handlers)
}

// Pending returns the queued handlers in registration order.
func (hr *HandlerRegistry) Pending() []*Handler {
	out := make([]*Handler, len(hr.pending))
	copy(out, hr.pending)
	return out
}

// Len returns the number of pending handlers.
func (hr *HandlerRegistry) Len() int {
	return len(hr.pending)
}

// take empties the queue and returns what was pending at that moment.
func (hr *HandlerRegistry) take() []*Handler {
	batch := hr.pending
	hr.pending = nil
	hr.queued = make(map[*Handler]struct{})
	return batch
}

// FlushHandlers runs every handler that is pending right now, in FIFO order.
// Handlers notified while the flush runs stay queued for the next flush. The
// queue is cleared even when a handler fails.
func (r *Run) FlushHandlers() error {
	batch := r.Handlers.take()
	if len(batch) == 0 {
		return nil
	}

	for _, h := range batch {
		r.printf(">> *** Starting handler: %s\n", h.Name)
		r.metrics.handlerRuns.WithLabelValues(h.Name).Inc()
		if err := r.runHandler(h); err != nil {
			if r.ignoringFailures() {
				common.LogWarn("Handler failed, failure ignored", map[string]interface{}{
					"handler": h.Name,
					"error":   err.Error(),
				})
				continue
			}
			return fmt.Errorf("handler %s: %w", h.Name, err)
		}
	}
	r.printf(">> *** Done with handlers\n")
	return nil
}

// runHandler runs the body of h one level below the top scope, wherever the
// flush was triggered from.
func (r *Run) runHandler(h *Handler) (err error) {
	saved := r.depth
	r.depth = 1
	defer func() {
		r.depth = saved
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: handler panicked: %v", ErrTaskFailure, p)
		}
	}()
	if h.Fn == nil {
		return nil
	}
	return h.Fn(r)
}

// flushAll drains handlers at the end of a run, including handlers that were
// notified by other handlers, bounded by maxPasses.
func (r *Run) flushAll(maxPasses int) error {
	for pass := 0; pass < maxPasses && r.Handlers.Len() > 0; pass++ {
		if err := r.FlushHandlers(); err != nil {
			return err
		}
	}
	if n := r.Handlers.Len(); n > 0 {
		common.LogWarn("Handlers still pending after final flush", map[string]interface{}{
			"pending":    handlerNames(r.Handlers.Pending()),
			"max_passes": maxPasses,
		})
	}
	return nil
}

func (h Handler) String() string {
	return h.Name
}
