package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultProjectConfigIsValid checks that the default configuration passes validation.
func TestDefaultProjectConfigIsValid(t *testing.T) {
	projectConfig, err := GetDefaultProjectConfig("solc")
	require.NoError(t, err)
	require.NoError(t, projectConfig.Validate())

	assert.Equal(t, "https://ipfs.io/ipfs/", projectConfig.Sources.IpfsGateway)
	assert.Equal(t, 3000, projectConfig.Sources.FetchTimeoutMs)
	assert.Equal(t, 5000, projectConfig.RpcTimeoutMs)
	assert.Equal(t, []string{"1", "11155111"}, projectConfig.SupportedChainIDs())

	chain, ok := projectConfig.Chain(1)
	require.True(t, ok)
	assert.Equal(t, "Ethereum Mainnet", chain.Name)
	_, ok = projectConfig.Chain(5)
	assert.False(t, ok)

	_, err = GetDefaultProjectConfig("vyper")
	assert.Error(t, err)
}

// TestProjectConfigRoundTrip checks that configurations written in either format read back identically.
func TestProjectConfigRoundTrip(t *testing.T) {
	t.Setenv("IPFS_GATEWAY", "")
	t.Setenv("FETCH_TIMEOUT", "")
	t.Setenv("SOLC_REPO", "")
	t.Setenv("SOLC_REPO_TMP", "")

	for _, name := range []string{"provenance.json", "provenance.toml"} {
		t.Run(name, func(t *testing.T) {
			projectConfig, err := GetDefaultProjectConfig("solcjs")
			require.NoError(t, err)
			projectConfig.Chains = append(projectConfig.Chains, ChainConfig{ChainID: 31337, Name: "Local", RPC: []string{"http://127.0.0.1:8545"}})
			projectConfig.Sources.RequestsPerSecond = 2.5
			projectConfig.Logging.Level = zerolog.DebugLevel

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, projectConfig.WriteToFile(path))

			readConfig, err := ReadProjectConfigFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, projectConfig.Chains, readConfig.Chains)
			assert.Equal(t, projectConfig.Sources, readConfig.Sources)
			assert.Equal(t, projectConfig.RpcTimeoutMs, readConfig.RpcTimeoutMs)
			assert.Equal(t, zerolog.DebugLevel, readConfig.Logging.Level)
			assert.Equal(t, "solcjs", readConfig.Compiler.Backend)
			assert.Equal(t, projectConfig.Compiler.Cache, readConfig.Compiler.Cache)
			assert.NoError(t, readConfig.Validate())
		})
	}
}

// TestProjectConfigPartialFile checks that values absent from a file keep their defaults.
func TestProjectConfigPartialFile(t *testing.T) {
	t.Setenv("IPFS_GATEWAY", "")
	t.Setenv("FETCH_TIMEOUT", "")

	path := filepath.Join(t.TempDir(), "provenance.toml")
	require.NoError(t, os.WriteFile(path, []byte("rpcTimeoutMs = 1234\n\n[sources]\nipfsGateway = \"http://localhost:8080/ipfs/\"\n"), 0644))

	projectConfig, err := ReadProjectConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, projectConfig.RpcTimeoutMs)
	assert.Equal(t, "http://localhost:8080/ipfs/", projectConfig.Sources.IpfsGateway)
	assert.Equal(t, 3000, projectConfig.Sources.FetchTimeoutMs)
	assert.NotEmpty(t, projectConfig.Chains)
}

// TestProjectConfigEnvironmentOverrides checks that environment variables override file values.
func TestProjectConfigEnvironmentOverrides(t *testing.T) {
	tmpRepository := filepath.Join(t.TempDir(), "solc-tmp")
	t.Setenv("IPFS_GATEWAY", "https://gateway.example/ipfs/")
	t.Setenv("FETCH_TIMEOUT", "8000")
	t.Setenv("SOLC_REPO_TMP", tmpRepository)
	t.Setenv("SOLC_REPO", "")

	projectConfig, err := GetDefaultProjectConfig("solc")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "provenance.json")
	require.NoError(t, projectConfig.WriteToFile(path))

	readConfig, err := ReadProjectConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.example/ipfs/", readConfig.Sources.IpfsGateway)
	assert.Equal(t, 8000, readConfig.Sources.FetchTimeoutMs)
	assert.Equal(t, []string{tmpRepository, "solc-repo"}, readConfig.Compiler.Cache.RepositoryDirectories)

	t.Setenv("FETCH_TIMEOUT", "soon")
	_, err = ReadProjectConfigFromFile(path)
	assert.Error(t, err)
}

// TestProjectConfigValidation checks that malformed configurations are rejected.
func TestProjectConfigValidation(t *testing.T) {
	tests := map[string]func(p *ProjectConfig){
		"no chains":          func(p *ProjectConfig) { p.Chains = nil },
		"duplicate chain":    func(p *ProjectConfig) { p.Chains = append(p.Chains, p.Chains[0]) },
		"relative rpc":       func(p *ProjectConfig) { p.Chains[0].RPC = []string{"localhost:8545"} },
		"supported, no rpc":  func(p *ProjectConfig) { p.Chains[0].RPC = nil },
		"zero rpc timeout":   func(p *ProjectConfig) { p.RpcTimeoutMs = 0 },
		"zero fetch timeout": func(p *ProjectConfig) { p.Sources.FetchTimeoutMs = 0 },
		"bad gateway":        func(p *ProjectConfig) { p.Sources.IpfsGateway = "ipfs://" },
		"unknown backend":    func(p *ProjectConfig) { p.Compiler.Backend = "vyper" },
		"no compiler":        func(p *ProjectConfig) { p.Compiler = nil },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			projectConfig, err := GetDefaultProjectConfig("solc")
			require.NoError(t, err)
			mutate(projectConfig)
			assert.Error(t, projectConfig.Validate())
		})
	}
}
