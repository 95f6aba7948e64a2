// Package modules holds the tasks playbooks are made of. Every task registers
// itself by its dotted name ("core.run", "fs.mkdir") and has a typed helper
// that invokes it through pkg.Run.Invoke.
package modules

import (
	"fmt"
	"os"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/runtime"
)

// host is the machine tasks change.
var host runtime.Host = runtime.NewLocalHost()

// invoke runs a task for a typed helper. The helper's caller is recorded as
// the call site. opts is never written to.
func invoke(r *pkg.Run, name string, in pkg.ModuleInput, opts []pkg.InvokeOption) (*pkg.Result, error) {
	return r.Invoke(name, in, append(opts[:len(opts):len(opts)], pkg.CallerSkip(2))...)
}

func boolPtr(b bool) *bool {
	return &b
}

// boolOr returns the value of b, or def when it is unset.
func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// joinNotes joins change descriptions for a result's extra message.
func joinNotes(notes []string) string {
	return strings.Join(notes, ", ")
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}
