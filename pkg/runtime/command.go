package runtime

import (
	"fmt"

	"github.com/google/shlex"
)

// DefaultShell runs commands that ask for a shell.
const DefaultShell = "/bin/sh"

// CommandOptions control how a command is started.
type CommandOptions struct {
	// Shell runs the command as "<Shell> -c <command>". When empty the command
	// is split with shell quoting rules and started directly, so nothing is
	// expanded.
	Shell string
	Dir   string
}

// CommandResult is what a finished command left behind. A non-zero exit code
// is not an error of Run.
type CommandResult struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r *CommandResult) Success() bool {
	return r.ExitCode == 0
}

func commandArgv(command string, opts CommandOptions) ([]string, error) {
	if command == "" {
		return nil, fmt.Errorf("command is empty")
	}
	if opts.Shell != "" {
		return []string{opts.Shell, "-c", command}, nil
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to split command %s: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	return argv, nil
}
