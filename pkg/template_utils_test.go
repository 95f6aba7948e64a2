package pkg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateString(t *testing.T) {
	ctx := map[string]interface{}{
		"name": "web",
		"ARGS": map[string]interface{}{"port": 8080},
	}
	testCases := []struct {
		input    string
		expected string
	}{
		{"no markers", "no markers"},
		{"{{ name }}", "web"},
		{"{{ ARGS.port }}", "8080"},
		{"{{ missing | default('x') }}", "x"},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			res, err := TemplateString(tc.input, ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, res)
		})
	}
}

func TestTemplateStringUndefined(t *testing.T) {
	ctx := map[string]interface{}{"ARGS": map[string]interface{}{}}

	_, err := TemplateString("{{ nope }} and {{ ARGS.user }}", ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUndefinedVariable))

	var undef *UndefinedVariableError
	require.True(t, errors.As(err, &undef))
	assert.Equal(t, []string{"ARGS.user", "nope"}, undef.Names)

	_, err = EvaluateExpression("nope == 1", ctx)
	assert.True(t, errors.Is(err, ErrUndefinedVariable))
}

func TestTemplateStringUndefinedSubscript(t *testing.T) {
	ctx := map[string]interface{}{
		"m": map[string]interface{}{"k": "v"},
		"l": []interface{}{"a", "b"},
	}

	res, err := TemplateString("dest/{{ m['k'] }}/{{ l[1] }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "dest/v/b", res)

	testCases := []struct {
		input string
		names []string
	}{
		{"dest/{{ m['nope'] }}", []string{"m['nope']"}},
		{`{{ m["nope"] | upper }}`, []string{`m["nope"]`}},
		{"{{ l[3] }}", []string{"l[3]"}},
		{"{{ nope['k'] }}", []string{"nope"}},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			_, err := TemplateString(tc.input, ctx)
			var undef *UndefinedVariableError
			require.True(t, errors.As(err, &undef), "got %v", err)
			assert.Equal(t, tc.names, undef.Names)
		})
	}

	res, err = TemplateString("{{ m['nope'] | default('z') }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "z", res)
}

func TestTemplateStringUndefinedInTags(t *testing.T) {
	ctx := map[string]interface{}{"items": []interface{}{"a", "b"}, "on": true}

	for _, input := range []string{
		"{% if missing %}x{% endif %}",
		"{% if on %}x{% elif missing %}y{% endif %}",
		"{% for x in missing %}{{ x }}{% endfor %}",
		"{% set y = missing %}{{ y }}",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := TemplateString(input, ctx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUndefinedVariable))
			var undef *UndefinedVariableError
			require.True(t, errors.As(err, &undef))
			assert.Equal(t, []string{"missing"}, undef.Names)
		})
	}

	res, err := TemplateString("{% for x in items %}{{ x }}{% endfor %}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "ab", res)

	res, err = TemplateString("{% if missing is defined %}x{% else %}y{% endif %}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "y", res)
}

func TestTemplateStringDelimitersInLiterals(t *testing.T) {
	ctx := map[string]interface{}{"y": "Y"}

	res, err := TemplateString("{{ y }} and {{ 'literal {{ y }}' }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "Y and literal {{ y }}", res)

	_, err = TemplateString("{{ 'x }}' ~ nope }}", ctx)
	var undef *UndefinedVariableError
	require.True(t, errors.As(err, &undef))
	assert.Equal(t, []string{"nope"}, undef.Names)
}

func TestEvaluateExpression(t *testing.T) {
	ctx := map[string]interface{}{"count": 3, "enabled": false}

	v, err := EvaluateExpression("count > 2", ctx)
	require.NoError(t, err)
	assert.True(t, IsTruthy(v))

	v, err = EvaluateExpression("enabled", ctx)
	require.NoError(t, err)
	assert.False(t, IsTruthy(v))
}

func TestGetVariablesFromExpression(t *testing.T) {
	assert.Equal(t, []string{"item.path", "ARGS.mode"}, GetVariablesFromExpression("item.path ~ 'x.y' ~ ARGS.mode"))
	assert.Equal(t, []string{"name"}, GetVariablesFromExpression("name.upper()"))
	assert.Empty(t, GetVariablesFromExpression("true and not none"))
	assert.Equal(t, []string{"m['a.b']", "l[0].name"}, GetVariablesFromExpression("m['a.b'] ~ l[0].name"))
	assert.Equal(t, []string{"l", "i"}, GetVariablesFromExpression("l[i]"))
}

type expandTarget struct {
	Path    string
	Tags    []string
	Labels  map[string]string
	Raw     RawString
	Nested  *expandTarget
	Handler *Handler
	Count   int
}

func TestExpand(t *testing.T) {
	ctx := map[string]interface{}{"x": "X"}
	h := NewHandler("h", nil)
	in := expandTarget{
		Path:    "/{{ x }}",
		Tags:    []string{"{{ x }}1", "plain"},
		Labels:  map[string]string{"{{ key }}": "{{ x }}"},
		Raw:     "{{ x }}",
		Nested:  &expandTarget{Path: "{{ x }}/nested"},
		Handler: h,
		Count:   3,
	}

	out, err := Expand(in, ctx)
	require.NoError(t, err)
	got := out.(expandTarget)
	assert.Equal(t, "/X", got.Path)
	assert.Equal(t, []string{"X1", "plain"}, got.Tags)
	assert.Equal(t, map[string]string{"{{ key }}": "X"}, got.Labels)
	assert.Equal(t, RawString("{{ x }}"), got.Raw)
	assert.Equal(t, "X/nested", got.Nested.Path)
	assert.Same(t, h, got.Handler)
	assert.Equal(t, 3, got.Count)

	// The original is untouched.
	assert.Equal(t, "/{{ x }}", in.Path)
	assert.Equal(t, "{{ x }}/nested", in.Nested.Path)

	generic, err := Expand([]interface{}{"{{ x }}", map[string]interface{}{"k": "{{ x }}"}, 1}, ctx)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"X", map[string]interface{}{"k": "X"}, 1}, generic)
}

func TestExpandInput(t *testing.T) {
	ctx := map[string]interface{}{"x": "X"}
	in := &stubInput{Msg: "{{ x }}", Token: "{{ x }}", Err: "{{ not_templated }}"}

	out, err := ExpandInput(in, ctx, nil)
	require.NoError(t, err)
	got := out.(*stubInput)
	assert.Equal(t, "X", got.Msg)
	assert.Equal(t, "X", got.Token)
	assert.Equal(t, "{{ not_templated }}", got.Err)
	assert.Equal(t, "{{ x }}", in.Msg)

	out, err = ExpandInput(stubInput{Msg: "{{ x }}", Token: "{{ x }}"}, ctx, map[string]bool{"token": true})
	require.NoError(t, err)
	assert.Equal(t, stubInput{Msg: "X", Token: "{{ x }}"}, out)

	_, err = ExpandInput(stubInput{Msg: "{{ y }}"}, ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter msg")
}
