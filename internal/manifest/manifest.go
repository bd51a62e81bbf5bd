// Package manifest loads proxy type surfaces from YAML, TOML or JSON files
// and provides the built-in presets.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format identifies a manifest encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// TypeSpec declares the proxied surface of one type
type TypeSpec struct {
	Name          string   `yaml:"name" toml:"name" json:"name"`
	Attributes    []string `yaml:"attributes" toml:"attributes" json:"attributes"`
	Methods       []string `yaml:"methods" toml:"methods" json:"methods"`
	EventHandlers []string `yaml:"event_handlers" toml:"event_handlers" json:"event_handlers"`
}

// Manifest is a set of type surfaces
type Manifest struct {
	Types []TypeSpec `yaml:"types" toml:"types" json:"types"`
}

// Lookup returns the type named name
func (m *Manifest) Lookup(name string) (TypeSpec, bool) {
	for _, t := range m.Types {
		if t.Name == name {
			return t, true
		}
	}
	return TypeSpec{}, false
}

// Names returns the declared type names in file order
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Types))
	for _, t := range m.Types {
		names = append(names, t.Name)
	}
	return names
}

// Validate rejects unnamed and duplicate types. Surface checks happen when
// a type is set up.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Types))
	for i, t := range m.Types {
		if t.Name == "" {
			return fmt.Errorf("type %d has no name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("type %q declared twice", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// FormatOf picks the format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q", filepath.Ext(path))
	}
}

// Load reads and parses a manifest file
func Load(path string) (*Manifest, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest in the given format
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatTOML:
		err = toml.Unmarshal(data, &m)
	case FormatJSON:
		err = sonic.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s parse error: %w", format, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

//go:embed presets.yaml
var presetData []byte

var presets = mustParsePresets()

func mustParsePresets() *Manifest {
	m, err := Parse(presetData, FormatYAML)
	if err != nil {
		panic(fmt.Sprintf("manifest: embedded presets: %v", err))
	}
	return m
}

// Presets returns the built-in type surfaces
func Presets() *Manifest {
	out := &Manifest{Types: make([]TypeSpec, len(presets.Types))}
	copy(out.Types, presets.Types)
	return out
}

// Preset returns one built-in type surface by name
func Preset(name string) (TypeSpec, bool) {
	return presets.Lookup(name)
}
