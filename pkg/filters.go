package pkg

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AlexanderGrooff/jinja-go"
)

// PathFilters are the path manipulation filters available in templates on top
// of the ones jinja-go provides.
var PathFilters = map[string]func(string) (string, error){
	"basename": func(p string) (string, error) { return Basename(p), nil },
	"dirname":  func(p string) (string, error) { return Dirname(p), nil },
	"abspath":  filepath.Abs,
}

// Basename returns everything after the last slash, "" for a trailing slash.
func Basename(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}

// Dirname returns everything before the last slash, without trailing slashes
// unless the result is the root.
func Dirname(p string) string {
	head := p[:strings.LastIndex(p, "/")+1]
	if head != "" && strings.Trim(head, "/") != "" {
		head = strings.TrimRight(head, "/")
	}
	return head
}

var filterNamePattern = regexp.MustCompile(`^\s*([A-Za-z_]\w*)`)

// span locates one delimited block: the block itself from start to end, and
// its body from bodyStart to bodyEnd with whitespace control dashes excluded.
type span struct {
	start, end         int
	bodyStart, bodyEnd int
}

// delimitedSpans finds the blocks of s opened by open and closed by closing.
// A closing delimiter inside a quoted string does not end the block. An
// unterminated block ends the scan.
func delimitedSpans(s, open, closing string) []span {
	var spans []span
	i := 0
	for {
		at := strings.Index(s[i:], open)
		if at < 0 {
			return spans
		}
		sp := span{start: i + at}
		sp.bodyStart = sp.start + len(open)
		if sp.bodyStart < len(s) && s[sp.bodyStart] == '-' {
			sp.bodyStart++
		}

		var quote byte
		j := sp.bodyStart
		for ; j < len(s); j++ {
			ch := s[j]
			if quote != 0 {
				if ch == '\\' {
					j++
				} else if ch == quote {
					quote = 0
				}
				continue
			}
			if ch == '\'' || ch == '"' {
				quote = ch
				continue
			}
			if strings.HasPrefix(s[j:], closing) {
				break
			}
		}
		if j >= len(s) {
			return spans
		}
		sp.bodyEnd = j
		if sp.bodyEnd > sp.bodyStart && s[sp.bodyEnd-1] == '-' {
			sp.bodyEnd--
		}
		sp.end = j + len(closing)
		spans = append(spans, sp)
		i = sp.end
	}
}

// expressionSpans finds the {{ }} expressions of s.
func expressionSpans(s string) []span {
	return delimitedSpans(s, "{{", "}}")
}

// splitPipes splits a jinja expression on filter pipes outside of quotes
// and brackets.
func splitPipes(expr string) []string {
	var parts []string
	var quote rune
	depth := 0
	start := 0
	for i, ch := range expr {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(' || ch == '[' || ch == '{':
			depth++
		case ch == ')' || ch == ']' || ch == '}':
			depth--
		case ch == '|' && depth == 0:
			// "||" is not a jinja operator, treat every pipe as a filter.
			parts = append(parts, expr[start:i])
			start = i + 1
		}
	}
	return append(parts, expr[start:])
}

func filterName(segment string) string {
	m := filterNamePattern.FindStringSubmatch(segment)
	if m == nil {
		return ""
	}
	return m[1]
}

func usesPathFilter(segments []string) bool {
	for _, seg := range segments[1:] {
		if _, ok := PathFilters[filterName(seg)]; ok {
			return true
		}
	}
	return false
}

const filteredValuePrefix = "up_filtered_"

// applyPathFilters evaluates every {{ }} expression that uses a path filter
// and replaces it with a reference to the computed value, so the rest of the
// template can be rendered by jinja-go in a single pass.
func applyPathFilters(s string, ctx map[string]interface{}) (string, map[string]interface{}, error) {
	matches := expressionSpans(s)
	if len(matches) == 0 {
		return s, nil, nil
	}

	var b strings.Builder
	var computed map[string]interface{}
	last := 0
	for _, m := range matches {
		exprStart, exprEnd := m.bodyStart, m.bodyEnd
		segments := splitPipes(s[exprStart:exprEnd])
		if len(segments) < 2 || !usesPathFilter(segments) {
			continue
		}

		value, err := evaluateFilterChain(segments, ctx)
		if err != nil {
			return "", nil, err
		}
		if computed == nil {
			computed = make(map[string]interface{})
		}
		key := fmt.Sprintf("%s%d", filteredValuePrefix, len(computed))
		computed[key] = value

		b.WriteString(s[last:exprStart])
		b.WriteString(" " + key + " ")
		last = exprEnd
	}
	if computed == nil {
		return s, nil, nil
	}
	b.WriteString(s[last:])
	return b.String(), computed, nil
}

func evaluateFilterChain(segments []string, ctx map[string]interface{}) (interface{}, error) {
	value, err := jinja.EvaluateExpression(strings.TrimSpace(segments[0]), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", segments[0], err)
	}
	for _, seg := range segments[1:] {
		name := filterName(seg)
		if fn, ok := PathFilters[name]; ok {
			value, err = fn(fmt.Sprint(value))
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", name, err)
			}
			continue
		}
		const piped = filteredValuePrefix + "input"
		scoped := make(map[string]interface{}, len(ctx)+1)
		for k, v := range ctx {
			scoped[k] = v
		}
		scoped[piped] = value
		value, err = jinja.EvaluateExpression(piped+" |"+seg, scoped)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
	}
	return value, nil
}
