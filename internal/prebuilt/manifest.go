// Package prebuilt downloads, verifies, and unpacks the prebuilt engine
// artifacts listed in a project manifest.
package prebuilt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrEntryNotFound   = errors.New("prebuilt entry not found")
)

// Entry describes one prebuilt artifact.
type Entry struct {
	Name               string `json:"name" yaml:"name"`
	Filename           string `json:"filename" yaml:"filename"`
	Version            string `json:"version" yaml:"version"`
	BaseURL            string `json:"base_url" yaml:"base_url"`
	Shasum             string `json:"shasum" yaml:"shasum"`
	DestinationBaseDir string `json:"destination_base_dir" yaml:"destination_base_dir"`
	Env                string `json:"env,omitempty" yaml:"env,omitempty"`
	NoUnpack           Flag   `json:"no_unpack" yaml:"no_unpack"`
}

// URL is the remote location of the artifact.
func (e Entry) URL() string {
	return e.BaseURL + e.Version + "/" + e.Filename
}

// Dir is the install directory relative to the project root.
func (e Entry) Dir() string {
	return filepath.Join(e.DestinationBaseDir, e.Name, e.Version)
}

func (e Entry) validate() error {
	switch {
	case e.Name == "":
		return fmt.Errorf("%w: entry missing name", ErrInvalidManifest)
	case e.Filename == "":
		return fmt.Errorf("%w: %s: missing filename", ErrInvalidManifest, e.Name)
	case e.Version == "":
		return fmt.Errorf("%w: %s: missing version", ErrInvalidManifest, e.Name)
	case e.DestinationBaseDir == "":
		return fmt.Errorf("%w: %s: missing destination_base_dir", ErrInvalidManifest, e.Name)
	case filepath.Base(e.Filename) != e.Filename:
		return fmt.Errorf("%w: %s: filename %q must not contain a path", ErrInvalidManifest, e.Name, e.Filename)
	}
	return nil
}

// Flag is a boolean that also accepts the strings "true" and "false".
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("flag must be a bool or string: %w", err)
	}
	return f.set(s)
}

func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("flag must be a bool or string: %w", err)
	}
	return f.set(s)
}

func (f *Flag) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*f = false
		return nil
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return fmt.Errorf("invalid flag value %q", s)
	}
	*f = Flag(b)
	return nil
}

// Manifest is the list of artifacts a project depends on.
type Manifest struct {
	Entries []Entry `json:"prebuiltFiles" yaml:"prebuiltFiles"`
}

// Find returns the entry with the given name.
func (m *Manifest) Find(name string) (Entry, error) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
}

// PrebuiltPath returns destination_base_dir/name/version for the named entry.
func (m *Manifest) PrebuiltPath(name string) (string, error) {
	e, err := m.Find(name)
	if err != nil {
		return "", err
	}
	return e.Dir(), nil
}

// LoadManifest reads a package.json or YAML manifest. The format is chosen by
// file extension.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, filepath.Ext(path))
}

// ParseManifest decodes manifest data. ext selects YAML for ".yaml" and
// ".yml"; anything else is decoded as JSON.
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var m Manifest
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	}
	for _, e := range m.Entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
