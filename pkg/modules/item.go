package modules

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/AlexanderGrooff/uplaybook/pkg"
)

// Item is a bag of attributes for one thing a playbook manages: a file, a
// directory, a user. Inside Run.WithItem its keys are template variables.
type Item map[string]interface{}

// Merge returns a copy of defaults overridden by the keys of i.
func (i Item) Merge(defaults Item) Item {
	out := make(Item, len(defaults)+len(i))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range i {
		out[k] = v
	}
	return out
}

// With runs fn with the attributes of i visible to templates.
func (i Item) With(r *pkg.Run, fn func() error) error {
	return r.WithItem(i, fn)
}

// String returns the value of key formatted as a task parameter.
func (i Item) String(key string) (string, error) {
	v, ok := i[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int, int64, uint32, float64:
		return fmt.Sprintf("%v", t), nil
	}
	return "", fmt.Errorf("item attribute %s: unsupported type %T", key, v)
}

// keys returns the attribute names sorted.
func (i Item) keys() []string {
	names := make([]string, 0, len(i))
	for k := range i {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
