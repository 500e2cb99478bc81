// Package annotate maps captured locations back to local source files and
// aggregates events per line for inline display. It holds no transport or
// storage concerns; its inputs are path-mapping rules and workspace roots
// supplied by the configuration layer.
package annotate

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tfkr-ae/sazed/domain"
)

// Correlator resolves a raw capture location (file URI, remote URL, absolute
// path, or workspace-relative path) to a canonical local file. Results are
// not cached; correlation is only attempted for displayed events so the
// per-event filesystem probes stay bounded.
type Correlator struct {
	Mappings []domain.PathMapping // Ordered mapping rules, first match wins
	Roots    []string             // Workspace root directories

	// Exists probes the filesystem for a candidate path. Overridable in tests;
	// defaults to an os.Stat check.
	Exists func(path string) bool
}

// NewCorrelator builds a correlator over the given mapping rules and
// workspace roots.
func NewCorrelator(mappings []domain.PathMapping, roots []string) *Correlator {
	return &Correlator{
		Mappings: mappings,
		Roots:    roots,
		Exists:   fileExists,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Resolve attempts each resolution strategy in order and returns the first
// canonical absolute path that exists. The second return is false when the
// location cannot be resolved; that is not an error, the event simply
// contributes no inline annotation.
func (c *Correlator) Resolve(location *domain.Location) (string, bool) {
	if location == nil || location.File == "" {
		return "", false
	}
	raw := location.File

	if path, ok := c.resolveFileURI(raw); ok {
		return path, true
	}
	if path, ok := c.resolveMapping(raw); ok {
		return path, true
	}
	if path, ok := c.resolveURL(raw); ok {
		return path, true
	}
	if filepath.IsAbs(raw) && c.exists(raw) {
		return filepath.Clean(raw), true
	}
	if path, ok := c.resolveAgainstRoots(raw); ok {
		return path, true
	}
	return "", false
}

func (c *Correlator) exists(path string) bool {
	if c.Exists != nil {
		return c.Exists(path)
	}
	return fileExists(path)
}

// resolveFileURI decodes a local-file URI and checks existence.
func (c *Correlator) resolveFileURI(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "file://") {
		return "", false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return "", false
	}
	path := filepath.Clean(parsed.Path)
	if c.exists(path) {
		return path, true
	}
	return "", false
}

// resolveMapping substitutes the first matching path-mapping prefix, then
// tries the rewritten location as an absolute path or against every
// workspace root.
func (c *Correlator) resolveMapping(raw string) (string, bool) {
	for _, mapping := range c.Mappings {
		if mapping.URLPrefix == "" || !strings.HasPrefix(raw, mapping.URLPrefix) {
			continue
		}
		candidate := mapping.LocalPathPrefix + raw[len(mapping.URLPrefix):]
		if filepath.IsAbs(candidate) {
			if c.exists(candidate) {
				return filepath.Clean(candidate), true
			}
			return "", false
		}
		return c.resolveAgainstRoots(candidate)
	}
	return "", false
}

// resolveURL joins the decoded path component of a generic URL, left-trimmed
// of its leading separator, against every workspace root.
func (c *Correlator) resolveURL(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	relative := strings.TrimPrefix(parsed.Path, "/")
	if relative == "" {
		return "", false
	}
	return c.resolveAgainstRoots(relative)
}

// resolveAgainstRoots joins a relative location against every workspace root
// and accepts the first that exists.
func (c *Correlator) resolveAgainstRoots(relative string) (string, bool) {
	for _, root := range c.Roots {
		candidate := filepath.Join(root, relative)
		if c.exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}
