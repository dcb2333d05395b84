package compilation

import (
	"encoding/json"

	"github.com/crytic/provenance/compilation/platforms"
	"github.com/crytic/provenance/metrics"
	"github.com/pkg/errors"
)

// CompilationConfig describes how compiler artifacts are obtained and which backend runs them.
type CompilationConfig struct {
	// Backend references an identifier indicating which compiler backend to use.
	Backend string `json:"backend"`

	// BackendConfig describes the Backend-specific configuration.
	BackendConfig *json.RawMessage `json:"backendConfig"`

	// Cache describes where compiler artifacts are stored and fetched from.
	Cache CompilerCacheConfig `json:"cache"`

	// ResultCacheSize is the number of raw compiler outputs memoized in memory.
	ResultCacheSize int `json:"resultCacheSize"`
}

// NewCompilationConfig returns a CompilationConfig with default values for a given backend identifier.
func NewCompilationConfig(backend string) (*CompilationConfig, error) {
	if !IsSupportedCompilerBackend(backend) {
		return nil, errors.Errorf("could not get default compilation config: backend '%s' is unsupported", backend)
	}
	return NewCompilationConfigFromBackend(GetDefaultBackendConfig(backend))
}

// NewCompilationConfigFromBackend wraps a platforms.CompilerBackend in a generic CompilationConfig so that each
// backend's configuration can be serialized alongside the rest of the project configuration.
func NewCompilationConfigFromBackend(backend platforms.CompilerBackend) (*CompilationConfig, error) {
	b, err := json.Marshal(backend)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	backendConfigMsg := json.RawMessage(b)

	return &CompilationConfig{
		Backend:         backend.Backend(),
		BackendConfig:   &backendConfigMsg,
		Cache:           NewCompilerCacheConfig(),
		ResultCacheSize: 32,
	}, nil
}

// Validate checks that the configuration names a supported backend and at least one compiler repository.
func (c *CompilationConfig) Validate() error {
	if !IsSupportedCompilerBackend(c.Backend) {
		return errors.Errorf("compiler backend '%s' is unsupported, expected one of %v", c.Backend, GetSupportedCompilerBackends())
	}
	if len(c.Cache.RepositoryDirectories) == 0 {
		return errors.New("at least one compiler repository directory must be configured")
	}
	return nil
}

// NewBackend deserializes the backend-specific configuration into the backend it describes.
func (c *CompilationConfig) NewBackend() (platforms.CompilerBackend, error) {
	if !IsSupportedCompilerBackend(c.Backend) {
		return nil, errors.Errorf("could not create compiler backend: backend '%s' is unsupported", c.Backend)
	}

	// json.Unmarshal needs the concrete type to populate, so start from the default configuration.
	backend := GetDefaultBackendConfig(c.Backend)
	if c.BackendConfig != nil {
		if err := json.Unmarshal(*c.BackendConfig, backend); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return backend, nil
}

// NewCompiler creates a Compiler backed by a CompilerCache using this configuration.
func (c *CompilationConfig) NewCompiler(m *metrics.Metrics) (*Compiler, error) {
	backend, err := c.NewBackend()
	if err != nil {
		return nil, err
	}
	return NewCompiler(backend, NewCompilerCache(c.Cache), c.ResultCacheSize, m)
}
