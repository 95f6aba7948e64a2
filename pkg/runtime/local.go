package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/AlexanderGrooff/uplaybook/pkg/common"
)

// LocalHost is the machine uplaybook runs on.
type LocalHost struct{}

func NewLocalHost() *LocalHost {
	return &LocalHost{}
}

func (h *LocalHost) Run(command string, opts CommandOptions) (*CommandResult, error) {
	argv, err := commandArgv(command, opts)
	if err != nil {
		return nil, err
	}
	prog, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("failed to find %s in $PATH: %w", argv[0], err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(prog, argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	common.DebugOutput("Running command: %s", cmd.String())
	res := &CommandResult{Argv: argv}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command %q: %w", cmd.String(), err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	return res, nil
}

// Stat follows symlinks when follow is set and describes the link itself
// otherwise.
func (h *LocalHost) Stat(path string, follow bool) (os.FileInfo, error) {
	if follow {
		return os.Stat(path)
	}
	return os.Lstat(path)
}

func (h *LocalHost) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile replaces the contents of path. perm only applies when the file is
// created.
func (h *LocalHost) WriteFile(path string, data []byte, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	return os.WriteFile(path, data, perm)
}

// CopyTree copies a file, or a directory with everything below it, keeping
// permission bits.
func (h *LocalHost) CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
