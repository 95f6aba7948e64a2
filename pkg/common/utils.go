package common

import (
	"reflect"
	"strconv"
	"strings"
)

// CopyMap creates a shallow copy of a map[string]interface{}.
func CopyMap(original map[string]interface{}) map[string]interface{} {
	if original == nil {
		return nil
	}
	newMap := make(map[string]interface{}, len(original))
	for key, value := range original {
		newMap[key] = value
	}
	return newMap
}

type pathSegment struct {
	key     string
	index   int
	isIndex bool
}

// splitPath breaks ARGS.hosts[0]['name'] into its segments. Parsing stops at
// the first segment it does not understand.
func splitPath(path string) []pathSegment {
	var segments []pathSegment
	for len(path) > 0 {
		switch path[0] {
		case '.':
			path = path[1:]
		case '[':
			end := strings.IndexByte(path, ']')
			if end < 0 {
				return segments
			}
			inner := strings.TrimSpace(path[1:end])
			path = path[end+1:]
			if n := len(inner); n >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[n-1] == inner[0] {
				segments = append(segments, pathSegment{key: inner[1 : n-1]})
				continue
			}
			i, err := strconv.Atoi(inner)
			if err != nil {
				return segments
			}
			segments = append(segments, pathSegment{index: i, isIndex: true})
		default:
			end := strings.IndexAny(path, ".[")
			if end < 0 {
				end = len(path)
			}
			segments = append(segments, pathSegment{key: path[:end]})
			path = path[end:]
		}
	}
	return segments
}

// LookupPath resolves a name such as "ARGS.user", "hosts[0]" or
// "conf['port']" against nested maps and lists. Traversal stops successfully
// at the first value it cannot index, since attribute access on other types
// is left to the template engine.
func LookupPath(m map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = m
	for _, seg := range splitPath(path) {
		v := reflect.ValueOf(current)
		switch {
		case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
			if seg.isIndex {
				return nil, false
			}
			next := v.MapIndex(reflect.ValueOf(seg.key).Convert(v.Type().Key()))
			if !next.IsValid() {
				return nil, false
			}
			current = next.Interface()
		case (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && seg.isIndex:
			i := seg.index
			if i < 0 {
				i += v.Len()
			}
			if i < 0 || i >= v.Len() {
				return nil, false
			}
			current = v.Index(i).Interface()
		default:
			return current, true
		}
	}
	return current, true
}
