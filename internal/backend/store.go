// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/naturalsort"
	"gopkg.in/yaml.v2"
)

// ConfigProvider supplies resolved backend configuration by name.
type ConfigProvider interface {
	// BackendConfig returns the configuration of the named
	// backend. Unknown names satisfy errors.IsNotFound.
	BackendConfig(name string) (Config, error)

	// BackendNames returns the names of all known backends in
	// natural sort order.
	BackendNames() []string
}

// backendsFile is the on-disk shape of a backend registry file.
type backendsFile struct {
	Backends map[string]map[string]interface{} `yaml:"backends"`
}

// ReadBackendsFile loads and validates every backend stanza in the
// YAML registry file at path.
func ReadBackendsFile(path string) (map[string]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "cannot read backends file")
	}
	var parsed backendsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Annotatef(err, "cannot parse backends file %q", path)
	}
	if len(parsed.Backends) == 0 {
		return nil, errors.NotValidf("backends file %q without backends", path)
	}
	configs := make(map[string]Config, len(parsed.Backends))
	for name, attrs := range parsed.Backends {
		cfg, err := NewConfig(name, attrs)
		if err != nil {
			return nil, errors.Trace(err)
		}
		configs[name] = cfg
	}
	return configs, nil
}

// FileStore is a ConfigProvider backed by a YAML registry file. The
// file is read once at construction; the resulting configuration is
// an immutable snapshot.
type FileStore struct {
	configs map[string]Config
}

// NewFileStore reads the backend registry file at path.
func NewFileStore(path string) (*FileStore, error) {
	configs, err := ReadBackendsFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &FileStore{configs: configs}, nil
}

// BackendConfig implements ConfigProvider.
func (s *FileStore) BackendConfig(name string) (Config, error) {
	cfg, ok := s.configs[name]
	if !ok {
		return Config{}, errors.NotFoundf("backend %q", name)
	}
	return cfg, nil
}

// BackendNames implements ConfigProvider.
func (s *FileStore) BackendNames() []string {
	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	naturalsort.Sort(names)
	return names
}

// MemProvider is an in-memory ConfigProvider, for tests and for
// callers that assemble configuration programmatically.
type MemProvider struct {
	configs map[string]Config
}

// NewMemProvider returns a provider serving the given configs.
func NewMemProvider(configs ...Config) *MemProvider {
	p := &MemProvider{configs: make(map[string]Config)}
	for _, cfg := range configs {
		p.configs[cfg.Name()] = cfg
	}
	return p
}

// BackendConfig implements ConfigProvider.
func (p *MemProvider) BackendConfig(name string) (Config, error) {
	cfg, ok := p.configs[name]
	if !ok {
		return Config{}, errors.NotFoundf("backend %q", name)
	}
	return cfg, nil
}

// BackendNames implements ConfigProvider.
func (p *MemProvider) BackendNames() []string {
	names := make([]string, 0, len(p.configs))
	for name := range p.configs {
		names = append(names, name)
	}
	naturalsort.Sort(names)
	return names
}
