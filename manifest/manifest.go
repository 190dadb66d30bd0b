// Package manifest handles stack.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultOutput is the image name used when neither the manifest nor the
// command line names one.
const DefaultOutput = "a.out"

// Manifest represents a stack.toml project configuration.
type Manifest struct {
	Source Source      `toml:"source"`
	Image  ImageConfig `toml:"image"`

	// Dir is the directory containing the stack.toml file (set at load time).
	Dir string `toml:"-"`
}

// Source configures how assembly sources are located.
type Source struct {
	// IncludeDirs are searched by the preprocessor for #include targets,
	// after the including file's own directory. Relative paths are
	// resolved against the manifest directory.
	IncludeDirs []string `toml:"include-dirs"`
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output string `toml:"output"`
}

// Load parses a stack.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "stack.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.Image.Output == "" {
		m.Image.Output = DefaultOutput
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a stack.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "stack.toml")); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// AbsIncludeDirs returns the include directories resolved against the
// manifest directory.
func (m *Manifest) AbsIncludeDirs() []string {
	dirs := make([]string, 0, len(m.Source.IncludeDirs))
	for _, dir := range m.Source.IncludeDirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(m.Dir, dir)
		}
		dirs = append(dirs, dir)
	}
	return dirs
}
