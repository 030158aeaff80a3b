// Package language maps user-supplied language names to the interpreter,
// file extension and container image used to run them.
package language

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
)

// ErrUnsupportedLanguage is returned by Resolve for names outside the table.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Canonical language names.
const (
	Python     = "python"
	Bash       = "bash"
	JavaScript = "javascript"
)

// Spec describes how to run code of one canonical language.
type Spec struct {
	Name       string   `json:"name"`
	Command    []string `json:"command"`
	Extension  string   `json:"extension"`
	Image      string   `json:"image"`
	Executable bool     `json:"executable"`
}

// Registry resolves names and aliases to a Spec. A Registry is immutable
// after construction and safe for concurrent use.
type Registry struct {
	specs   map[string]Spec
	aliases map[string]string
}

var defaultRegistry = &Registry{
	specs: map[string]Spec{
		Python:     {Name: Python, Command: []string{"python3"}, Extension: ".py", Image: "python:3.9-slim"},
		Bash:       {Name: Bash, Command: []string{"bash"}, Extension: ".sh", Image: "bash:5.1", Executable: true},
		JavaScript: {Name: JavaScript, Command: []string{"node"}, Extension: ".js", Image: "node:16-slim"},
	},
	aliases: map[string]string{
		"py":    Python,
		"sh":    Bash,
		"shell": Bash,
		"js":    JavaScript,
		"node":  JavaScript,
	},
}

// Default returns the built-in registry.
func Default() *Registry { return defaultRegistry }

// Resolve resolves name against the built-in registry.
func Resolve(name string) (Spec, error) { return defaultRegistry.Resolve(name) }

// SameLanguage reports whether a and b resolve to the same canonical language
// in the built-in registry.
func SameLanguage(a, b string) bool { return defaultRegistry.SameLanguage(a, b) }

// Resolve looks up name case-insensitively. Aliases resolve to their
// canonical language.
func (r *Registry) Resolve(name string) (Spec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	spec, ok := r.specs[key]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, key)
	}
	spec.Command = append([]string(nil), spec.Command...)
	return spec, nil
}

// SameLanguage reports whether a and b resolve to the same canonical language.
func (r *Registry) SameLanguage(a, b string) bool {
	sa, err := r.Resolve(a)
	if err != nil {
		return false
	}
	sb, err := r.Resolve(b)
	if err != nil {
		return false
	}
	return sa.Name == sb.Name
}

// Supported returns canonical names and aliases, sorted.
func (r *Registry) Supported() []string {
	names := make([]string, 0, len(r.specs)+len(r.aliases))
	for name := range r.specs {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// WithImages returns a copy of r with container images replaced for the
// canonical languages present in images. Empty values and unknown keys are
// ignored.
func (r *Registry) WithImages(images map[string]string) *Registry {
	out := &Registry{
		specs:   maps.Clone(r.specs),
		aliases: r.aliases,
	}
	for name, image := range images {
		spec, ok := out.specs[name]
		if !ok || image == "" {
			continue
		}
		spec.Image = image
		out.specs[name] = spec
	}
	return out
}
