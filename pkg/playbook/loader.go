// Package playbook loads YAML playbooks and turns them into pkg.Playbook
// bodies that invoke tasks step by step.
package playbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"gopkg.in/yaml.v3"
)

// Loader parses playbook files. Each file is parsed once; including the same
// file twice reuses its steps and handlers.
type Loader struct {
	PlaybookPath string

	cache map[string]*pkg.Playbook
}

// NewLoader creates a loader that resolves includes along playbookPath.
func NewLoader(playbookPath string) *Loader {
	return &Loader{
		PlaybookPath: playbookPath,
		cache:        make(map[string]*pkg.Playbook),
	}
}

// document is the mapping form of a playbook file. The sequence form is only
// the steps.
type document struct {
	Description string    `yaml:"description"`
	Handlers    yaml.Node `yaml:"handlers"`
	Steps       yaml.Node `yaml:"steps"`
}

// Load parses the playbook described by info.
func (l *Loader) Load(info Info) (*pkg.Playbook, error) {
	if pb, ok := l.cache[info.File]; ok {
		return pb, nil
	}
	data, err := os.ReadFile(info.File)
	if err != nil {
		return nil, fmt.Errorf("error reading playbook %s: %w", info.File, err)
	}
	pb, err := l.Parse(info, data)
	if err != nil {
		return nil, err
	}
	l.cache[info.File] = pb
	return pb, nil
}

// Parse builds a playbook from YAML data without touching the filesystem.
func (l *Loader) Parse(info Info, data []byte) (*pkg.Playbook, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("error parsing playbook %s: %w", info.File, err)
	}

	p := &parser{file: info.File}
	var doc document
	var stepsNode *yaml.Node
	if len(root.Content) > 0 {
		top := root.Content[0]
		switch top.Kind {
		case yaml.SequenceNode:
			stepsNode = top
		case yaml.MappingNode:
			if err := top.Decode(&doc); err != nil {
				return nil, p.errorf(top, "invalid playbook: %v", err)
			}
			stepsNode = &doc.Steps
		default:
			return nil, p.errorf(top, "playbook must be a list of steps or a mapping with steps")
		}
	}

	steps, err := p.steps(stepsNode)
	if err != nil {
		return nil, err
	}
	handlers, err := p.handlers(&doc.Handlers)
	if err != nil {
		return nil, err
	}

	ex := &executor{loader: l, file: info.File}
	for _, h := range handlers {
		hs := h
		hs.handler.Fn = func(r *pkg.Run) error {
			return ex.run(r, hs.steps)
		}
	}

	pb := &pkg.Playbook{
		Name:        info.Name,
		Path:        info.File,
		Directory:   info.Directory,
		Description: strings.TrimSpace(doc.Description),
	}
	pb.Body = func(r *pkg.Run) error {
		for _, h := range handlers {
			if err := define(r, h.handler); err != nil {
				return err
			}
		}
		return ex.run(r, steps)
	}
	common.LogDebug("Loaded playbook", map[string]interface{}{
		"playbook": info.Name,
		"file":     info.File,
		"steps":    len(steps),
		"handlers": len(handlers),
	})
	return pb, nil
}

// define makes h notifiable unless this very handler already is.
func define(r *pkg.Run, h *pkg.Handler) error {
	if existing, ok := r.Handlers.Lookup(h.Name); ok && existing == h {
		return nil
	}
	return r.Handlers.Define(h)
}

// resolveInclude finds an included playbook: next to the including playbook
// first, then along the search path.
func (l *Loader) resolveInclude(name, fromDir string) (Info, error) {
	if !filepath.IsAbs(name) {
		for _, candidate := range []string{name, name + Ext} {
			local := filepath.Join(fromDir, candidate)
			if _, err := os.Stat(local); err == nil {
				return fromPath(local)
			}
		}
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		return fromPath(name)
	}
	return Find(name, l.PlaybookPath)
}
