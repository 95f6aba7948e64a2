package playbook

import (
	"fmt"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"go.uber.org/multierr"
)

// executor runs the steps of one playbook file.
type executor struct {
	loader *Loader
	file   string
}

func (e *executor) run(r *pkg.Run, steps []*Step) error {
	for _, s := range steps {
		if err := e.step(r, s); err != nil {
			return err
		}
	}
	return nil
}

func (e *executor) step(r *pkg.Run, s *Step) error {
	if s.When != "" {
		ok, err := e.when(r, s)
		if err != nil {
			return err
		}
		if !ok {
			common.LogDebug("Skipping step", map[string]interface{}{
				"file": e.file,
				"line": s.Line,
				"when": s.When,
			})
			return nil
		}
	}

	switch s.Kind {
	case kindTask:
		return e.invoke(r, s, s.Task, s.Input)
	case kindSet:
		return e.invoke(r, s, "core.set", s.Input)
	case kindArgs:
		return e.invoke(r, s, "core.playbook_args", s.Input)
	case kindExit:
		return e.invoke(r, s, "core.exit", s.Input)
	case kindFlushHandlers:
		return e.invoke(r, s, "core.flush_handlers", s.Input)
	case kindInclude:
		return e.include(r, s)
	case kindIgnoreFailures:
		return r.IgnoreFailures(func() error {
			return e.run(r, s.Steps)
		})
	case kindBlock:
		return e.run(r, s.Steps)
	case kindItem:
		item, err := e.expandItem(r, s, s.Item)
		if err != nil {
			return err
		}
		return r.WithItem(item, func() error {
			return e.run(r, s.Steps)
		})
	case kindItems:
		for _, attrs := range s.Items {
			item, err := e.expandItem(r, s, attrs)
			if err != nil {
				return err
			}
			err = r.WithItem(item, func() error {
				return e.run(r, s.Steps)
			})
			if err != nil {
				return err
			}
		}
		return nil
	case kindCd:
		return e.scope(r, s, "fs.cd")
	case kindBecome:
		return e.scope(r, s, "core.become")
	}
	return fmt.Errorf("%s:%d: unknown step kind %s", e.file, s.Line, s.Kind)
}

func (e *executor) when(r *pkg.Run, s *Step) (bool, error) {
	v, err := pkg.EvaluateExpression(s.When, r.TemplateContext(s.Vars))
	if err != nil {
		return false, fmt.Errorf("%s:%d: when: %w", e.file, s.Line, err)
	}
	return pkg.IsTruthy(v), nil
}

func (e *executor) options(s *Step) []pkg.InvokeOption {
	opts := []pkg.InvokeOption{pkg.At(e.file, s.Line)}
	if len(s.Vars) > 0 {
		opts = append(opts, pkg.WithLocals(s.Vars))
	}
	if len(s.Raw) > 0 {
		opts = append(opts, pkg.RawArgs(s.Raw...))
	}
	return opts
}

// invoke runs one task and applies the step's register and notify.
func (e *executor) invoke(r *pkg.Run, s *Step, task string, in pkg.ModuleInput) error {
	res, err := r.Invoke(task, in, e.options(s)...)
	if res != nil && s.Register != "" {
		if rerr := r.Set(s.Register, res.AsMap()); rerr != nil {
			return multierr.Append(err, fmt.Errorf("%s:%d: register: %w", e.file, s.Line, rerr))
		}
	}
	if err != nil {
		return err
	}
	return e.notify(r, s, res)
}

func (e *executor) notify(r *pkg.Run, s *Step, res *pkg.Result) error {
	if len(s.Notify) == 0 {
		return nil
	}
	handlers := make([]*pkg.Handler, 0, len(s.Notify))
	for _, name := range s.Notify {
		h, ok := r.Handlers.Lookup(name)
		if !ok {
			return fmt.Errorf("%s:%d: no handler named %q", e.file, s.Line, name)
		}
		handlers = append(handlers, h)
	}
	res.Notify(handlers...)
	return nil
}

// scope runs a context manager task, then the nested steps, and closes the
// scope whether they fail or not.
func (e *executor) scope(r *pkg.Run, s *Step, task string) (err error) {
	res, err := r.Invoke(task, s.Input, e.options(s)...)
	if err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return nil
	}
	if !res.OK() {
		return fmt.Errorf("%s:%d: %s failed, not running its steps", e.file, s.Line, task)
	}
	defer func() {
		err = multierr.Append(err, res.Close())
	}()
	return e.run(r, s.Steps)
}

func (e *executor) expandItem(r *pkg.Run, s *Step, attrs map[string]interface{}) (map[string]interface{}, error) {
	expanded, err := pkg.Expand(attrs, r.TemplateContext(s.Vars))
	if err != nil {
		return nil, fmt.Errorf("%s:%d: item: %w", e.file, s.Line, err)
	}
	item, _ := expanded.(map[string]interface{})
	out := common.CopyMap(item)
	if _, taken := out["item"]; !taken {
		out["item"] = item
	}
	return out, nil
}

func (e *executor) include(r *pkg.Run, s *Step) error {
	name, err := pkg.TemplateString(s.Include, r.TemplateContext(s.Vars))
	if err != nil {
		return fmt.Errorf("%s:%d: include: %w", e.file, s.Line, err)
	}
	info, err := e.loader.resolveInclude(name, r.PlaybookDir())
	if err != nil {
		return fmt.Errorf("%s:%d: %w", e.file, s.Line, err)
	}
	pb, err := e.loader.Load(info)
	if err != nil {
		return err
	}
	var opts []pkg.IncludeOption
	if !s.Hoist {
		opts = append(opts, pkg.NoHoist())
	}
	return r.Include(pb, opts...)
}
