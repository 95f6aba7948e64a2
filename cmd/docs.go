package cmd

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AlexanderGrooff/uplaybook/pkg"
)

var docsCmd = &cobra.Command{
	Use:   "docs [module|module.task]",
	Short: "Show documentation for a task module or a single task",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			writeIndex(out)
			return nil
		}
		return writeDocs(out, args[0])
	},
}

type fieldDoc struct {
	YamlTag    string
	TypeString string
	Templated  bool
	Secret     bool
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice:
		return "[" + typeString(t.Elem()) + "]"
	case reflect.Map:
		return fmt.Sprintf("map[%s]%s", typeString(t.Key()), typeString(t.Elem()))
	case reflect.Interface:
		return "any"
	case reflect.Struct:
		return t.Name()
	default:
		return t.String()
	}
}

func fieldsFromType(t reflect.Type) []fieldDoc {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	out := make([]fieldDoc, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" || sf.Anonymous || sf.Tag.Get("yaml") == "-" {
			continue
		}
		tags := sf.Tag.Get("up")
		out = append(out, fieldDoc{
			YamlTag:    pkg.FieldName(sf),
			TypeString: typeString(sf.Type),
			Templated:  strings.Contains(tags, "template"),
			Secret:     strings.Contains(tags, "secret"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YamlTag < out[j].YamlTag })
	return out
}

// firstLine is the summary line of a module's documentation.
func firstLine(name string) string {
	m, ok := pkg.GetModule(name)
	if !ok {
		return ""
	}
	mdp, ok := m.(pkg.ModuleDocProvider)
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(mdp.Doc()), "\n")
	return line
}

// groups returns task names by the module prefix before the dot.
func groups() map[string][]string {
	out := make(map[string][]string)
	for _, name := range pkg.ModuleNames() {
		group, _, _ := strings.Cut(name, ".")
		out[group] = append(out[group], name)
	}
	return out
}

func writeIndex(out io.Writer) {
	g := groups()
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "# Task modules")
	fmt.Fprintln(out)
	for _, group := range names {
		fmt.Fprintf(out, "- %s (%d tasks)\n", group, len(g[group]))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, `Run "up docs <module>" to list its tasks, "up docs <module>.<task>" for details.`)
}

func writeDocs(out io.Writer, name string) error {
	if tasks, ok := groups()[name]; ok {
		fmt.Fprintf(out, "## Available Tasks:\n\n")
		for _, task := range tasks {
			if line := firstLine(task); line != "" {
				fmt.Fprintf(out, "- %s - %s\n", task, line)
			} else {
				fmt.Fprintf(out, "- %s\n", task)
			}
		}
		return nil
	}

	mod, ok := pkg.GetModule(name)
	if !ok {
		return fmt.Errorf("no documentation for %s: not a module or task", name)
	}
	fmt.Fprintf(out, "# %s\n\n", name)
	if mdp, ok := mod.(pkg.ModuleDocProvider); ok {
		if content := strings.TrimSpace(mdp.Doc()); content != "" {
			fmt.Fprintf(out, "%s\n\n", content)
		}
	}

	var docs map[string]pkg.ParameterDoc
	if pdp, ok := mod.(pkg.ParameterDocsProvider); ok {
		docs = pdp.ParameterDocs()
	}
	fields := fieldsFromType(mod.InputType())
	if len(fields) == 0 {
		return nil
	}
	fmt.Fprintf(out, "## Parameters\n\n")
	for _, f := range fields {
		d := docs[f.YamlTag]
		var notes []string
		if d.Required != nil && *d.Required {
			notes = append(notes, "required")
		}
		if d.Default != "" {
			notes = append(notes, "default="+d.Default)
		}
		if len(d.Choices) > 0 {
			notes = append(notes, "one of "+strings.Join(d.Choices, ", "))
		}
		if f.Templated {
			notes = append(notes, "templated")
		}
		if f.Secret {
			notes = append(notes, "secret")
		}
		line := fmt.Sprintf("- %s (%s", f.YamlTag, f.TypeString)
		if len(notes) > 0 {
			line += "; " + strings.Join(notes, "; ")
		}
		line += ")"
		if d.Description != "" {
			line += ": " + d.Description
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func init() {
	RootCmd.AddCommand(docsCmd)
}
