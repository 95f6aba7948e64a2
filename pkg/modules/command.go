package modules

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"github.com/AlexanderGrooff/uplaybook/pkg/runtime"
	"gopkg.in/yaml.v3"
)

// RunModule implements core.run. Stdout becomes the result output, stderr and
// the exit code are stored in extra.
type RunModule struct{}

func (m RunModule) InputType() reflect.Type {
	return reflect.TypeOf(RunInput{})
}

// Doc returns module-level documentation rendered into Markdown.
func (m RunModule) Doc() string {
	return `Run a command. Stdout is returned as the output of the result, stderr and the exit code are available as extra.stderr and extra.returncode.

## Examples

` + "```yaml" + `
- task: core.run
  command: systemctl restart sshd

- task: core.run
  command: rm *.foo    # removes the literal file "*.foo"
  shell: false

- task: core.run
  command: grep -q ^user: /etc/passwd
  ignore_failures: true
  change: false
  register: has_user
` + "```" + `
`
}

// ParameterDocs provides rich documentation for run module inputs.
func (m RunModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"command": {
			Description: "Command to run. Templated.",
			Required:    &required,
		},
		"shell": {
			Description: "Run the command through /bin/sh, allowing redirection, globbing and pipelines. When false the command is split with shell quoting rules and executed directly.",
			Required:    &notRequired,
			Default:     "true",
		},
		"ignore_failures": {
			Description: "Do not treat a non-zero exit code as fatal, so it can be tested later.",
			Required:    &notRequired,
			Default:     "false",
		},
		"change": {
			Description: "Whether running the command counts as a change and triggers notifications.",
			Required:    &notRequired,
			Default:     "true",
		},
		"creates": {
			Description: "If this path exists the command is considered to have run already and is skipped. Templated.",
			Required:    &notRequired,
		},
	}
}

// RunInput defines the parameters for core.run.
type RunInput struct {
	Command        string `yaml:"command" up:"template"`
	Shell          *bool  `yaml:"shell,omitempty"`
	IgnoreFailures bool   `yaml:"ignore_failures,omitempty"`
	Change         *bool  `yaml:"change,omitempty"`
	Creates        string `yaml:"creates,omitempty" up:"template"`
}

// Validate checks if the input parameters are valid.
func (i RunInput) Validate() error {
	if strings.TrimSpace(i.Command) == "" {
		return fmt.Errorf("missing command for run module")
	}
	return nil
}

// UnmarshalYAML allows the command as a plain scalar.
func (i *RunInput) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && (node.Tag == "!!str" || node.Tag == "") {
		i.Command = node.Value
		return nil
	}
	if node.Kind == yaml.MappingNode {
		type RunInputMap struct {
			Command        string `yaml:"command"`
			Cmd            string `yaml:"cmd"` // Alias for command
			Shell          *bool  `yaml:"shell"`
			IgnoreFailures bool   `yaml:"ignore_failures"`
			Change         *bool  `yaml:"change"`
			Creates        string `yaml:"creates"`
		}
		var tmp RunInputMap
		if err := node.Decode(&tmp); err != nil {
			return fmt.Errorf("failed to decode run input map (line %d): %w", node.Line, err)
		}
		if tmp.Command != "" && tmp.Cmd != "" {
			return fmt.Errorf("cannot specify both 'command' and 'cmd' for run module (line %d)", node.Line)
		}
		i.Command = tmp.Command
		if tmp.Cmd != "" {
			i.Command = tmp.Cmd
		}
		i.Shell, i.IgnoreFailures, i.Change, i.Creates = tmp.Shell, tmp.IgnoreFailures, tmp.Change, tmp.Creates
		return nil
	}
	return fmt.Errorf("invalid type for run module input (line %d): expected string or map, got %v", node.Line, node.Tag)
}

// Execute runs the command on the local host.
func (m RunModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(RunInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected RunInput, got %T", params)
	}
	if p.Creates != "" && pathExists(p.Creates) {
		return pkg.Changed(false), nil
	}

	var opts runtime.CommandOptions
	if boolOr(p.Shell, true) {
		opts.Shell = runtime.DefaultShell
	}
	cmdResult, err := host.Run(p.Command, opts)
	if err != nil {
		return &pkg.Result{}, err
	}

	res := &pkg.Result{
		Changed: boolOr(p.Change, true),
		Output:  strings.TrimRight(cmdResult.Stdout, "\n"),
		Extra: map[string]interface{}{
			"stderr":     cmdResult.Stderr,
			"returncode": cmdResult.ExitCode,
		},
	}
	if cmdResult.ExitCode != 0 {
		res.Failed = true
		res.ExtraMessage = fmt.Sprintf("Exit code %d", cmdResult.ExitCode)
		res.IgnoreFailure = p.IgnoreFailures
		common.LogDebug("Command failed", map[string]interface{}{
			"command":    p.Command,
			"returncode": cmdResult.ExitCode,
			"stderr":     cmdResult.Stderr,
		})
	}
	return res, nil
}

// RunCommand runs command through the shell.
func RunCommand(r *pkg.Run, in RunInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.run", in, opts)
}

func init() {
	pkg.RegisterModule("core.run", RunModule{})
}
