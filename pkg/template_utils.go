package pkg

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/AlexanderGrooff/jinja-go"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
)

// RawString is a string that is never template expanded, for values that
// legitimately contain template delimiters.
type RawString string

var (
	rawStringType = reflect.TypeOf(RawString(""))
	// Handlers are compared by pointer, expansion must not copy them.
	handlerPtrType = reflect.TypeOf((*Handler)(nil))
)

// HasTemplateMarkers reports whether s contains jinja delimiters.
func HasTemplateMarkers(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%") || strings.Contains(s, "{#")
}

// TemplateString renders s against ctx exactly once. Strings without
// delimiters are returned unchanged. A reference to an unbound name fails with
// an *UndefinedVariableError unless the expression supplies a default.
func TemplateString(s string, ctx map[string]interface{}) (string, error) {
	if !HasTemplateMarkers(s) {
		return s, nil
	}
	if err := checkUndefined(s, ctx); err != nil {
		return "", err
	}

	rewritten, computed, err := applyPathFilters(s, ctx)
	if err != nil {
		return "", fmt.Errorf("failed to template string: %w", err)
	}
	if computed != nil {
		ctx = mergeContexts(ctx, computed)
	}

	res, err := jinja.TemplateString(rewritten, ctx)
	if err != nil {
		return "", fmt.Errorf("failed to template string: %w", err)
	}
	if s != res {
		common.DebugOutput("Templated %q", s)
	}
	return res, nil
}

// EvaluateExpression evaluates a bare jinja expression such as a when
// condition.
func EvaluateExpression(expr string, ctx map[string]interface{}) (interface{}, error) {
	if err := checkUndefined("{{ "+expr+" }}", ctx); err != nil {
		return nil, err
	}
	segments := splitPipes(expr)
	if len(segments) > 1 && usesPathFilter(segments) {
		return evaluateFilterChain(segments, ctx)
	}
	res, err := jinja.EvaluateExpression(expr, ctx)
	common.DebugOutput("Evaluated expression %q -> %v. Error: %v", expr, res, err)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return res, nil
}

// IsTruthy applies jinja truthiness to an evaluated value.
func IsTruthy(v interface{}) bool {
	return jinja.IsTruthy(v)
}

func mergeContexts(base, top map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

var (
	defaultedPattern = regexp.MustCompile(`\|\s*(default|d)\b|\bis\s+(not\s+)?defined\b`)
	forBindPattern   = regexp.MustCompile(`\{%-?\s*for\s+([\w\s,]+?)\s+in\b`)
	setBindPattern   = regexp.MustCompile(`\{%-?\s*set\s+(\w+)`)
	stringLiteral    = regexp.MustCompile(`'[^']*'|"[^"]*"`)
	identifierPath   = regexp.MustCompile(`[A-Za-z_]\w*(?:\.[A-Za-z_]\w*|\[\s*(?:'[^']*'|"[^"]*"|-?\d+)\s*\])*`)
	methodTail       = regexp.MustCompile(`\.[A-Za-z_]\w*$`)
	// Statements whose expression is evaluated when the tag is rendered.
	tagExpression = regexp.MustCompile(`(?s)^\s*(?:(?:if|elif)\s+(.*)|for\s+[\w\s,]+?\s+in\s+(.*)|set\s+\w+\s*=\s*(.*))$`)
)

var jinjaKeywords = []string{
	"if", "else", "elif", "for", "in", "not", "and", "or", "is",
	"true", "false", "none", "True", "False", "None",
	"range", "dict", "lipsum", "cycler", "joiner", "namespace", "loop",
}

func isKeyword(s string) bool {
	for _, k := range jinjaKeywords {
		if k == s {
			return true
		}
	}
	return false
}

// pathRoot is the variable name a path such as conf['port'].x starts with.
func pathRoot(path string) string {
	if i := strings.IndexAny(path, ".["); i != -1 {
		return path[:i]
	}
	return path
}

// GetVariablesFromExpression returns the names an expression reads, with
// attribute and constant subscript tails such as ARGS.user or hosts[0]. String
// literals, keywords and function calls are skipped.
func GetVariablesFromExpression(expr string) []string {
	literals := stringLiteral.FindAllStringIndex(expr, -1)
	inLiteral := func(pos int) bool {
		for _, l := range literals {
			if pos >= l[0] && pos < l[1] {
				return true
			}
		}
		return false
	}

	var vars []string
	for _, loc := range identifierPath.FindAllStringIndex(expr, -1) {
		if inLiteral(loc[0]) {
			continue
		}
		if loc[0] > 0 {
			prev := expr[loc[0]-1]
			if prev == '.' || (prev >= '0' && prev <= '9') {
				continue
			}
		}
		name := expr[loc[0]:loc[1]]
		rest := strings.TrimLeft(expr[loc[1]:], " ")
		if strings.HasPrefix(rest, "(") {
			// A call: keep the receiver, drop the method name.
			tail := methodTail.FindStringIndex(name)
			if tail == nil {
				continue
			}
			name = name[:tail[0]]
		}
		if isKeyword(pathRoot(name)) {
			continue
		}
		vars = append(vars, name)
	}
	return vars
}

// GetVariableUsageFromTemplate lists the variables a template reads.
func GetVariableUsageFromTemplate(s string) []string {
	vars, err := jinja.ParseVariables(s)
	if err != nil {
		for _, expr := range templateExpressions(s) {
			vars = append(vars, GetVariablesFromExpression(splitPipes(expr)[0])...)
		}
	}
	return vars
}

// templateExpressions returns the body of every {{ }} expression of s and the
// expressions evaluated by its if, elif, for and set tags.
func templateExpressions(s string) []string {
	var exprs []string
	for _, sp := range expressionSpans(s) {
		exprs = append(exprs, s[sp.bodyStart:sp.bodyEnd])
	}
	for _, sp := range delimitedSpans(s, "{%", "%}") {
		m := tagExpression.FindStringSubmatch(s[sp.bodyStart:sp.bodyEnd])
		if m == nil {
			continue
		}
		for _, expr := range m[1:] {
			if strings.TrimSpace(expr) != "" {
				exprs = append(exprs, expr)
			}
		}
	}
	return exprs
}

func blockBoundNames(s string) map[string]struct{} {
	bound := make(map[string]struct{})
	for _, m := range forBindPattern.FindAllStringSubmatch(s, -1) {
		for _, name := range strings.Split(m[1], ",") {
			if name = strings.TrimSpace(name); name != "" {
				bound[name] = struct{}{}
			}
		}
	}
	for _, m := range setBindPattern.FindAllStringSubmatch(s, -1) {
		bound[m[1]] = struct{}{}
	}
	return bound
}

// checkUndefined looks at every expression of s and reports the names that
// resolve in no layer of ctx.
func checkUndefined(s string, ctx map[string]interface{}) error {
	exprs := templateExpressions(s)
	if len(exprs) == 0 {
		return nil
	}
	bound := blockBoundNames(s)

	missing := make(map[string]struct{})
	for _, expr := range exprs {
		if defaultedPattern.MatchString(expr) {
			continue
		}
		head := splitPipes(expr)[0]

		roots, err := jinja.ParseVariablesFromExpression(head)
		if err != nil {
			roots = GetVariablesFromExpression(head)
		}
		for _, name := range roots {
			root := pathRoot(name)
			if root == "" || isKeyword(root) || strings.HasPrefix(root, filteredValuePrefix) {
				continue
			}
			if _, ok := bound[root]; ok {
				continue
			}
			if _, ok := ctx[root]; !ok {
				missing[root] = struct{}{}
			}
		}

		for _, path := range GetVariablesFromExpression(head) {
			if _, ok := bound[pathRoot(path)]; ok {
				continue
			}
			if _, ok := common.LookupPath(ctx, path); !ok {
				missing[path] = struct{}{}
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return &UndefinedVariableError{Template: s, Names: dedupePaths(names)}
}

// dedupePaths drops a path whose root is itself missing, so nope.x is
// reported as nope.
func dedupePaths(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	var out []string
	for _, n := range names {
		if root := pathRoot(n); root != n {
			if _, rootMissing := set[root]; rootMissing {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

// Expand walks value and renders every string leaf once. RawString values and
// non string leaves pass through unchanged; map keys are not expanded.
func Expand(value interface{}, ctx map[string]interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	v, err := expandValue(reflect.ValueOf(value), ctx)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func expandValue(originalVal reflect.Value, ctx map[string]interface{}) (reflect.Value, error) {
	if !originalVal.IsValid() {
		return originalVal, nil
	}
	if t := originalVal.Type(); t == rawStringType || t == handlerPtrType {
		return originalVal, nil
	}

	switch originalVal.Kind() {
	case reflect.String:
		templated, err := TemplateString(originalVal.String(), ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(originalVal.Type()).Elem()
		out.SetString(templated)
		return out, nil

	case reflect.Struct:
		newStruct := reflect.New(originalVal.Type()).Elem()
		for i := 0; i < originalVal.NumField(); i++ {
			field := newStruct.Field(i)
			if !field.CanSet() {
				continue
			}
			processed, err := expandValue(originalVal.Field(i), ctx)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("failed to process field %s: %w", originalVal.Type().Field(i).Name, err)
			}
			if processed.IsValid() {
				field.Set(processed)
			}
		}
		return newStruct, nil

	case reflect.Ptr:
		if originalVal.IsNil() {
			return reflect.Zero(originalVal.Type()), nil
		}
		processed, err := expandValue(originalVal.Elem(), ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		newPtr := reflect.New(originalVal.Elem().Type())
		if processed.IsValid() {
			newPtr.Elem().Set(processed)
		}
		return newPtr, nil

	case reflect.Interface:
		if originalVal.IsNil() {
			return originalVal, nil
		}
		processed, err := expandValue(originalVal.Elem(), ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(originalVal.Type()).Elem()
		if processed.IsValid() {
			out.Set(processed)
		}
		return out, nil

	case reflect.Slice:
		if originalVal.IsNil() {
			return reflect.Zero(originalVal.Type()), nil
		}
		newSlice := reflect.MakeSlice(originalVal.Type(), originalVal.Len(), originalVal.Len())
		for j := 0; j < originalVal.Len(); j++ {
			processed, err := expandValue(originalVal.Index(j), ctx)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("failed to process slice element %d: %w", j, err)
			}
			if processed.IsValid() {
				newSlice.Index(j).Set(processed)
			}
		}
		return newSlice, nil

	case reflect.Map:
		if originalVal.IsNil() {
			return reflect.Zero(originalVal.Type()), nil
		}
		newMap := reflect.MakeMap(originalVal.Type())
		iter := originalVal.MapRange()
		for iter.Next() {
			processed, err := expandValue(iter.Value(), ctx)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("failed to process map value for key %v: %w", iter.Key().Interface(), err)
			}
			if processed.IsValid() {
				newMap.SetMapIndex(iter.Key(), processed)
			} else {
				newMap.SetMapIndex(iter.Key(), reflect.Zero(originalVal.Type().Elem()))
			}
		}
		return newMap, nil

	default:
		return originalVal, nil
	}
}

// fieldTags parses the `up:"..."` tag of a struct field.
func fieldTags(sf reflect.StructField) map[string]bool {
	tags := make(map[string]bool)
	for _, t := range strings.Split(sf.Tag.Get("up"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags[t] = true
		}
	}
	return tags
}

// FieldName is the parameter name of a struct field: its yaml tag, or the
// lowercased Go name.
func FieldName(sf reflect.StructField) string {
	if tag := sf.Tag.Get("yaml"); tag != "" {
		if name := strings.Split(tag, ",")[0]; name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(sf.Name)
}

// ExpandInput returns a copy of input with every field tagged `up:"template"`
// expanded, except the fields named in raw. The original is not mutated.
func ExpandInput(input ModuleInput, ctx map[string]interface{}, raw map[string]bool) (ModuleInput, error) {
	if input == nil {
		return nil, nil
	}
	orig := reflect.ValueOf(input)
	wasPointer := orig.Kind() == reflect.Ptr
	if wasPointer {
		if orig.IsNil() {
			return input, nil
		}
		orig = orig.Elem()
	}
	if orig.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input (type %T, kind %s) is not a struct or a pointer to a struct", input, orig.Kind())
	}

	out := reflect.New(orig.Type()).Elem()
	out.Set(orig)
	for i := 0; i < orig.NumField(); i++ {
		sf := orig.Type().Field(i)
		if sf.PkgPath != "" || !fieldTags(sf)["template"] || raw[FieldName(sf)] {
			continue
		}
		processed, err := expandValue(orig.Field(i), ctx)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", FieldName(sf), err)
		}
		if processed.IsValid() {
			out.Field(i).Set(processed)
		}
	}

	var result interface{}
	if wasPointer {
		p := reflect.New(out.Type())
		p.Elem().Set(out)
		result = p.Interface()
	} else {
		result = out.Interface()
	}
	mi, ok := result.(ModuleInput)
	if !ok {
		return nil, fmt.Errorf("expanded input of type %T no longer implements ModuleInput", result)
	}
	return mi, nil
}
