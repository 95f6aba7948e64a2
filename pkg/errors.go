package pkg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUndefinedVariable is returned when a template references a name that is
	// bound in no layer of the template context and no default was given.
	ErrUndefinedVariable = errors.New("undefined variable")
	// ErrTaskFailure marks a task that reported or raised a failure.
	ErrTaskFailure = errors.New("task failed")
	// ErrArgument is returned when playbook arguments are missing or invalid.
	ErrArgument = errors.New("invalid arguments")
	// ErrHelp is wrapped by the ExitError returned after printing --help.
	ErrHelp = errors.New("help requested")
	// ErrContractViolation is returned when a task implementation does not
	// produce a Result. It is always fatal.
	ErrContractViolation = errors.New("task contract violation")
)

// UndefinedVariableError names the variables a template could not resolve.
type UndefinedVariableError struct {
	Template string
	Names    []string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("undefined variable %s in template %q", strings.Join(e.Names, ", "), e.Template)
}

func (e *UndefinedVariableError) Unwrap() error {
	return ErrUndefinedVariable
}

// TaskFailureError is returned by Invoke when a task fails outside of an
// ignore-failures scope.
type TaskFailureError struct {
	Task   string
	Result *Result
	Err    error
}

func (e *TaskFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
	}
	if e.Result != nil && e.Result.ExtraMessage != "" {
		return fmt.Sprintf("task %s failed: %s", e.Task, e.Result.ExtraMessage)
	}
	return fmt.Sprintf("task %s failed", e.Task)
}

// Is reports ErrTaskFailure as well as whatever the cause matches.
func (e *TaskFailureError) Is(target error) bool {
	return target == ErrTaskFailure
}

func (e *TaskFailureError) Unwrap() error {
	return e.Err
}

// ArgumentError carries the usage text that is printed before exiting.
type ArgumentError struct {
	Msg   string
	Usage string
}

func (e *ArgumentError) Error() string {
	return e.Msg
}

func (e *ArgumentError) Unwrap() error {
	return ErrArgument
}

// ExitError requests that the run stops with the given exit code.
type ExitError struct {
	Code int
	Msg  string
	Err  error
}

func (e *ExitError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("exit %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a run error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, ErrArgument) {
		return 2
	}
	return 1
}
