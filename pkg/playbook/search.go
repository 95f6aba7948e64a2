package playbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"gopkg.in/yaml.v3"
)

// Ext is the extension of single file playbooks.
const Ext = ".pb"

// dirEntryName is the file a directory playbook keeps its steps in.
const dirEntryName = "playbook"

// ErrNotFound is returned when no playbook matches a name.
var ErrNotFound = errors.New("playbook not found")

// Info describes a playbook on disk.
type Info struct {
	// Name is what the playbook is called on the command line.
	Name      string
	Directory string
	File      string
}

// SearchPaths splits a colon separated playbook path, expanding "~".
func SearchPaths(playbookPath string) []string {
	home, _ := os.UserHomeDir()
	var dirs []string
	for _, dir := range strings.Split(playbookPath, ":") {
		if dir = strings.TrimSpace(dir); dir == "" {
			continue
		}
		if home != "" && (dir == "~" || strings.HasPrefix(dir, "~/")) {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

// List returns the playbooks in each search directory, in search path order
// and sorted by name within a directory. A name can occur more than once; the
// first occurrence wins when running.
func List(playbookPath string) ([]Info, error) {
	var out []Info
	for _, dir := range SearchPaths(playbookPath) {
		files, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
		if err != nil {
			return nil, err
		}
		dirPlaybooks, err := filepath.Glob(filepath.Join(dir, "*", dirEntryName))
		if err != nil {
			return nil, err
		}

		var found []Info
		for _, f := range append(files, dirPlaybooks...) {
			info, err := os.Stat(f)
			if err != nil || info.IsDir() {
				continue
			}
			found = append(found, infoFor(f))
		}
		sort.SliceStable(found, func(i, j int) bool { return found[i].Name < found[j].Name })
		out = append(out, found...)
	}
	return out, nil
}

func infoFor(file string) Info {
	dir := filepath.Dir(file)
	name := filepath.Base(file)
	if name == dirEntryName && dir != "." {
		name = filepath.Base(dir)
	}
	return Info{Name: name, Directory: dir, File: file}
}

// Find resolves name to a playbook. A name containing a path separator is
// used as a path, a directory meaning its playbook file. Otherwise the search
// path is walked and "name" also matches "name.pb".
func Find(name, playbookPath string) (Info, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		return fromPath(name)
	}

	playbooks, err := List(playbookPath)
	if err != nil {
		return Info{}, err
	}
	for _, pb := range playbooks {
		if pb.Name == name || (!strings.HasSuffix(name, Ext) && pb.Name == name+Ext) {
			return absolute(pb)
		}
	}
	return Info{}, fmt.Errorf("%w: unable to locate a playbook by the name of %s, searched in path %s", ErrNotFound, name, playbookPath)
}

func fromPath(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if st.IsDir() {
		inner := filepath.Join(path, dirEntryName)
		if _, err := os.Stat(inner); err != nil {
			return Info{}, fmt.Errorf("%w: directory %s has no %s file", ErrNotFound, path, dirEntryName)
		}
		path = inner
	}
	return absolute(infoFor(path))
}

func absolute(pb Info) (Info, error) {
	file, err := filepath.Abs(pb.File)
	if err != nil {
		return Info{}, err
	}
	pb.File, pb.Directory = file, filepath.Dir(file)
	return pb, nil
}

// Describe returns the first line of the playbook's description, empty when
// it has none or cannot be read.
func Describe(file string) string {
	data, err := os.ReadFile(file)
	if err != nil {
		return ""
	}
	var doc struct {
		Description string `yaml:"description"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// A plain step list has no description.
		common.LogDebug("No description in playbook", map[string]interface{}{
			"file":  file,
			"error": err.Error(),
		})
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(doc.Description), "\n")
	return line
}
