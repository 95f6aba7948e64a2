package pkg

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// Argument declares one playbook argument. Without a default it is a required
// positional argument, with a default it becomes a --name option.
type Argument struct {
	Name        string      `yaml:"name"`
	Label       string      `yaml:"label"`
	Description string      `yaml:"description"`
	Type        string      `yaml:"type"`
	Default     interface{} `yaml:"default"`
}

// Argument types.
const (
	ArgString   = "str"
	ArgBool     = "bool"
	ArgInt      = "int"
	ArgPassword = "password"
)

func (a Argument) kind() string {
	if a.Type == "" {
		return ArgString
	}
	return a.Type
}

// Validate checks the declared type.
func (a Argument) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("argument name is required")
	}
	switch a.kind() {
	case ArgString, ArgBool, ArgInt, ArgPassword:
		return nil
	}
	return fmt.Errorf("argument %s: unknown type %q, expected str, bool, int or password", a.Name, a.Type)
}

func (a Argument) key() string {
	return strings.ReplaceAll(a.Name, "-", "_")
}

func (a Argument) positional() bool {
	return a.Default == nil && a.kind() != ArgBool
}

// PasswordPrompt reads a password from the terminal. Replaced in tests.
var PasswordPrompt = func(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// ParseArgs parses the run's remaining command line arguments against the
// declarations and stores the values under ARGS. Arguments that were not
// consumed stay available for a later call.
func (r *Run) ParseArgs(decls []Argument) error {
	prog := "up"
	description := ""
	if r.Playbook != nil {
		prog = "up:" + r.Playbook.Name
		description = r.Playbook.Description
	}

	fs := pflag.NewFlagSet(prog, pflag.ContinueOnError)
	var errOut bytes.Buffer
	fs.SetOutput(&errOut)
	fs.SetNormalizeFunc(normalizeFlagName)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	var positional []Argument
	strs := make(map[string]*string)
	ints := make(map[string]*int)
	bools := make(map[string]*bool)
	negated := make(map[string]*bool)

	for _, a := range decls {
		if err := a.Validate(); err != nil {
			return &ArgumentError{Msg: err.Error()}
		}
		if a.positional() {
			positional = append(positional, a)
			continue
		}
		help := a.Description
		switch a.kind() {
		case ArgBool:
			def, err := toBool(a.Default)
			if err != nil {
				return &ArgumentError{Msg: fmt.Sprintf("argument %s: %v", a.Name, err)}
			}
			bools[a.Name] = fs.Bool(a.Name, def, help)
			negated[a.Name] = fs.Bool("no-"+a.Name, false, "Disable --"+a.Name)
		case ArgInt:
			def, err := toInt(a.Default)
			if err != nil {
				return &ArgumentError{Msg: fmt.Sprintf("argument %s: %v", a.Name, err)}
			}
			ints[a.Name] = fs.Int(a.Name, def, help)
		default:
			strs[a.Name] = fs.String(a.Name, fmt.Sprint(a.Default), help)
		}
	}

	usage := argsUsage(prog, description, positional, fs)

	if err := fs.Parse(r.remainingArgs); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			r.printf("%s", usage)
			return &ExitError{Code: 0, Err: ErrHelp}
		}
		return &ArgumentError{Msg: err.Error(), Usage: usage}
	}

	rest := fs.Args()
	for _, a := range positional {
		var raw string
		switch {
		case len(rest) > 0:
			raw, rest = rest[0], rest[1:]
		case a.kind() == ArgPassword:
			label := a.Label
			if label == "" {
				label = a.Name
			}
			pw, err := PasswordPrompt(label + ": ")
			if err != nil {
				return &ArgumentError{Msg: fmt.Sprintf("argument %s is required: %v", a.Name, err), Usage: usage}
			}
			raw = pw
		default:
			return &ArgumentError{Msg: fmt.Sprintf("the following argument is required: %s", a.Name), Usage: usage}
		}

		if a.kind() == ArgInt {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return &ArgumentError{Msg: fmt.Sprintf("argument %s: invalid int value %q", a.Name, raw), Usage: usage}
			}
			r.SetArg(a.key(), n)
			continue
		}
		r.SetArg(a.key(), raw)
	}

	for name, v := range strs {
		r.SetArg(strings.ReplaceAll(name, "-", "_"), *v)
	}
	for name, v := range ints {
		r.SetArg(strings.ReplaceAll(name, "-", "_"), *v)
	}
	for name, v := range bools {
		value := *v
		if *negated[name] {
			value = false
		}
		r.SetArg(strings.ReplaceAll(name, "-", "_"), value)
	}

	r.remainingArgs = rest
	return nil
}

func argsUsage(prog, description string, positional []Argument, fs *pflag.FlagSet) string {
	var b strings.Builder
	b.WriteString("usage: " + prog + " [options]")
	for _, a := range positional {
		b.WriteString(" " + a.Name)
	}
	b.WriteString("\n")
	if description != "" {
		b.WriteString("\n" + strings.TrimSpace(description) + "\n")
	}
	if len(positional) > 0 {
		b.WriteString("\npositional arguments:\n")
		for _, a := range positional {
			fmt.Fprintf(&b, "  %-20s %s\n", a.Name, a.Description)
		}
	}
	if flags := fs.FlagUsages(); flags != "" {
		b.WriteString("\noptions:\n" + flags)
	}
	return b.String()
}

func toBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(t)
	}
	return false, fmt.Errorf("invalid bool default %v", v)
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	}
	return 0, fmt.Errorf("invalid int default %v", v)
}
