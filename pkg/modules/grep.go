package modules

import (
	"bufio"
	"bytes"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg"
)

// GrepModule implements core.grep. The result is OK when a line of the file
// matches.
type GrepModule struct{}

func (m GrepModule) InputType() reflect.Type {
	return reflect.TypeOf(GrepInput{})
}

func (m GrepModule) Doc() string {
	return `Look for search in the file at path. By default a missing match is an ignored failure, so the registered result can be tested.

## Examples

` + "```yaml" + `
- task: core.grep
  path: /tmp/foo
  search: secret=xyzzy
  register: has_secret
- task: core.debug
  msg: found it
  when: has_secret.ok
` + "```" + `
`
}

func (m GrepModule) ParameterDocs() map[string]pkg.ParameterDoc {
	required := true
	notRequired := false
	return map[string]pkg.ParameterDoc{
		"path": {
			Description: "File to look for a match in. Templated.",
			Required:    &required,
		},
		"search": {
			Description: "The regular expression, or plain string, to look for. Templated.",
			Required:    &required,
		},
		"regex": {
			Description: "Treat search as a regular expression. When false a plain substring search is done.",
			Required:    &notRequired,
			Default:     "true",
		},
		"ignore_failures": {
			Description: "Do not treat a missing match as fatal.",
			Required:    &notRequired,
			Default:     "true",
		},
	}
}

// GrepInput defines the parameters for core.grep.
type GrepInput struct {
	Path           string `yaml:"path" up:"template"`
	Search         string `yaml:"search" up:"template"`
	Regex          *bool  `yaml:"regex,omitempty"`
	IgnoreFailures *bool  `yaml:"ignore_failures,omitempty"`
}

func (i GrepInput) Validate() error {
	if err := requireField("path", i.Path); err != nil {
		return err
	}
	return requireField("search", i.Search)
}

func (m GrepModule) Execute(params pkg.ModuleInput, c *pkg.Closure) (*pkg.Result, error) {
	p, ok := pkg.Deref(params).(GrepInput)
	if !ok {
		return nil, fmt.Errorf("Execute: incorrect parameter type: expected GrepInput, got %T", params)
	}

	match := func(line string) bool { return strings.Contains(line, p.Search) }
	if boolOr(p.Regex, true) {
		rx, err := regexp.Compile(p.Search)
		if err != nil {
			return &pkg.Result{}, fmt.Errorf("invalid search pattern: %w", err)
		}
		match = rx.MatchString
	}

	data, err := host.ReadFile(p.Path)
	if err != nil {
		return &pkg.Result{}, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for scanner.Scan() {
		if match(scanner.Text()) {
			return pkg.Changed(false), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &pkg.Result{}, err
	}

	res := pkg.Failure("No match found")
	res.IgnoreFailure = boolOr(p.IgnoreFailures, true)
	return res, nil
}

// Grep looks for search in the file at path.
func Grep(r *pkg.Run, in GrepInput, opts ...pkg.InvokeOption) (*pkg.Result, error) {
	return invoke(r, "core.grep", in, opts)
}

func init() {
	pkg.RegisterModule("core.grep", GrepModule{})
}
