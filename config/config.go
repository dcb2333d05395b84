package config

import (
	"bytes"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/crytic/provenance/compilation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ProjectConfig describes the configuration of the verification engine.
type ProjectConfig struct {
	// Chains describes the chains contracts can be verified against.
	Chains []ChainConfig `json:"chains"`

	// Sources describes how missing source files are fetched.
	Sources SourcesConfig `json:"sources"`

	// RpcTimeoutMs bounds each individual JSON-RPC call, in milliseconds.
	RpcTimeoutMs int `json:"rpcTimeoutMs"`

	// Compiler describes how compilers are obtained and run during recompilation.
	Compiler *compilation.CompilationConfig `json:"compiler"`

	// Logging describes the configuration used for logging to file and console
	Logging LoggingConfig `json:"logging"`

	// MetricsEnabled indicates whether verification metrics are collected.
	MetricsEnabled bool `json:"metricsEnabled"`

	// MetricsFile is the path metrics are written to when the process exits. If empty, metrics are not persisted.
	MetricsFile string `json:"metricsFile"`
}

// ChainConfig describes a single chain and the JSON-RPC endpoints used to reach it, in priority order.
type ChainConfig struct {
	// ChainID is the EIP-155 chain identifier.
	ChainID uint64 `json:"chainId"`

	// Name is a human-readable name for the chain.
	Name string `json:"name"`

	// RPC lists endpoint URLs. They are tried in order until one responds.
	RPC []string `json:"rpc"`

	// Supported indicates whether verification requests for this chain are accepted.
	Supported bool `json:"supported"`
}

// SourcesConfig describes how source files referenced by metadata are fetched.
type SourcesConfig struct {
	// IpfsGateway is the gateway prefix IPFS paths are appended to.
	IpfsGateway string `json:"ipfsGateway"`

	// FetchTimeoutMs bounds each individual fetch attempt, in milliseconds.
	FetchTimeoutMs int `json:"fetchTimeoutMs"`

	// RequestsPerSecond limits outgoing fetches. Zero disables rate limiting.
	RequestsPerSecond float64 `json:"requestsPerSecond"`

	// CacheDirectory is where fetched sources and creation transactions are persisted. If empty, an in-memory cache is
	// used instead.
	CacheDirectory string `json:"cacheDirectory"`
}

// LoggingConfig describes the configuration options for logging to console and file
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	// Increasing level values represent more severe logs
	Level zerolog.Level `json:"level"`

	// LogDirectory describes what directory log files should be outputted in/ LogDirectory being a non-empty string is
	// equivalent to enabling file logging.
	LogDirectory string `json:"logDirectory"`

	// NoColor indicates whether or not log messages should be displayed with colored formatting.
	NoColor bool `json:"noColor"`
}

// Chain returns the configuration of the chain with the provided identifier, if it is configured.
func (p *ProjectConfig) Chain(chainId uint64) (*ChainConfig, bool) {
	for i := range p.Chains {
		if p.Chains[i].ChainID == chainId {
			return &p.Chains[i], true
		}
	}
	return nil, false
}

// SupportedChainIDs returns the identifiers of every supported chain as decimal strings.
func (p *ProjectConfig) SupportedChainIDs() []string {
	ids := make([]string, 0, len(p.Chains))
	for _, chain := range p.Chains {
		if chain.Supported {
			ids = append(ids, strconv.FormatUint(chain.ChainID, 10))
		}
	}
	return ids
}

// ReadProjectConfigFromFile reads a JSON-serialized ProjectConfig from a provided file path. Files ending in .toml are
// parsed as TOML instead. Values not present in the file keep their defaults, and environment overrides are applied last.
// Returns the ProjectConfig if it succeeds, or an error if one occurs.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// TOML documents are converted to JSON so that both formats share the same field names.
	if isTomlPath(path) {
		var document map[string]any
		if _, err = toml.Decode(string(b), &document); err != nil {
			return nil, errors.Wrapf(err, "could not parse %s", path)
		}
		if b, err = json.Marshal(document); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	projectConfig, err := GetDefaultProjectConfig("")
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(b, projectConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err = projectConfig.ApplyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in a JSON-serialized format, or TOML if the path ends
// in .toml. Returns an error if one occurs.
func (p *ProjectConfig) WriteToFile(path string) error {
	b, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}

	if isTomlPath(path) {
		var document map[string]any
		if err = json.Unmarshal(b, &document); err != nil {
			return errors.WithStack(err)
		}
		var buf bytes.Buffer
		if err = toml.NewEncoder(&buf).Encode(document); err != nil {
			return errors.WithStack(err)
		}
		b = buf.Bytes()
	}

	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// ApplyEnvironmentOverrides applies the IPFS_GATEWAY, FETCH_TIMEOUT, SOLC_REPO and SOLC_REPO_TMP environment variables
// over the configuration.
func (p *ProjectConfig) ApplyEnvironmentOverrides() error {
	if gateway := os.Getenv("IPFS_GATEWAY"); gateway != "" {
		p.Sources.IpfsGateway = gateway
	}
	if timeout := os.Getenv("FETCH_TIMEOUT"); timeout != "" {
		ms, err := strconv.Atoi(timeout)
		if err != nil {
			return errors.Errorf("FETCH_TIMEOUT must be an integer number of milliseconds, got %q", timeout)
		}
		p.Sources.FetchTimeoutMs = ms
	}

	if p.Compiler == nil {
		return nil
	}
	tmpRepository, repository := os.Getenv("SOLC_REPO_TMP"), os.Getenv("SOLC_REPO")
	if tmpRepository == "" && repository == "" {
		return nil
	}
	defaults := compilation.NewCompilerCacheConfig()
	p.Compiler.Cache.RepositoryDirectories = defaults.RepositoryDirectories
	return nil
}

// Validate validates that the ProjectConfig meets certain requirements.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	if len(p.Chains) == 0 {
		return errors.Errorf("at least one chain must be configured")
	}

	seen := make(map[uint64]bool)
	for _, chain := range p.Chains {
		if seen[chain.ChainID] {
			return errors.Errorf("chain %d is configured more than once", chain.ChainID)
		}
		seen[chain.ChainID] = true

		if chain.Supported && len(chain.RPC) == 0 {
			return errors.Errorf("supported chain %d must have at least one rpc endpoint", chain.ChainID)
		}
		for _, endpoint := range chain.RPC {
			if err := validateURL(endpoint, "http", "https", "ws", "wss"); err != nil {
				return errors.Wrapf(err, "invalid rpc endpoint for chain %d", chain.ChainID)
			}
		}
	}

	if p.RpcTimeoutMs <= 0 {
		return errors.Errorf("rpc timeout must be a positive number")
	}
	if p.Sources.FetchTimeoutMs <= 0 {
		return errors.Errorf("source fetch timeout must be a positive number")
	}
	if p.Sources.RequestsPerSecond < 0 {
		return errors.Errorf("source requests per second cannot be negative")
	}
	if err := validateURL(p.Sources.IpfsGateway, "http", "https"); err != nil {
		return errors.Wrap(err, "invalid ipfs gateway")
	}

	if p.Compiler == nil {
		return errors.Errorf("a compiler configuration must be provided")
	}
	return p.Compiler.Validate()
}

// validateURL checks that the provided string is an absolute URL with one of the allowed schemes.
func validateURL(rawURL string, schemes ...string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.WithStack(err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme && parsed.Host != "" {
			return nil
		}
	}
	return errors.Errorf("%q must be an absolute url with one of the schemes %v", rawURL, schemes)
}

// isTomlPath returns true if the path has a .toml extension.
func isTomlPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
