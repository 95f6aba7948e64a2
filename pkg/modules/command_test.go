package modules

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRunCommand(t *testing.T) {
	r, out := newRun(t)
	require.NoError(t, r.Set("who", "world"))

	res, err := RunCommand(r, RunInput{Command: "echo hello {{ who }}; echo oops >&2"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "hello world", res.Output)
	assert.Equal(t, "oops\n", res.Extra["stderr"])
	assert.Equal(t, 0, res.Extra["returncode"])
	assert.Equal(t, "=> run(command=echo hello world; echo oops >&2, ignore_failures=false)\nhello world\n", out.String())
}

func TestRunCommandFailure(t *testing.T) {
	r, _ := newRun(t)

	res, err := RunCommand(r, RunInput{Command: "exit 3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkg.ErrTaskFailure))
	assert.Equal(t, "Exit code 3", res.ExtraMessage)

	r, _ = newRun(t)
	res, err = RunCommand(r, RunInput{Command: "exit 3", IgnoreFailures: true, Change: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.False(t, res.Changed)
	assert.Equal(t, 3, res.Extra["returncode"])
	assert.False(t, r.Recap.Fatal())
}

func TestRunCommandWithoutShell(t *testing.T) {
	r, _ := newRun(t)

	res, err := RunCommand(r, RunInput{Command: "echo 'a  b' $HOME", Shell: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "a  b $HOME", res.Output)
}

func TestRunCommandCreates(t *testing.T) {
	r, _ := newRun(t)
	marker := writeFile(t, filepath.Join(t.TempDir(), "done"), "", 0o644)

	res, err := RunCommand(r, RunInput{Command: "exit 1", Creates: marker})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.True(t, res.OK())
}

func TestRunInputUnmarshalYAML(t *testing.T) {
	var in RunInput
	require.NoError(t, yaml.Unmarshal([]byte(`ls -l`), &in))
	assert.Equal(t, "ls -l", in.Command)

	in = RunInput{}
	require.NoError(t, yaml.Unmarshal([]byte("cmd: uptime\nshell: false\ncreates: /tmp/x\n"), &in))
	assert.Equal(t, "uptime", in.Command)
	assert.Equal(t, false, *in.Shell)
	assert.Equal(t, "/tmp/x", in.Creates)

	err := yaml.Unmarshal([]byte("cmd: a\ncommand: b\n"), &in)
	assert.ErrorContains(t, err, "cannot specify both")
}
