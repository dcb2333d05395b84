package config

import (
	"github.com/crytic/provenance/compilation"
	"github.com/rs/zerolog"
)

// DefaultProjectConfigFilename is the name of the configuration file read when none is provided.
const DefaultProjectConfigFilename = "provenance.json"

// GetDefaultProjectConfig obtains a default configuration. It populates a default compiler configuration for the
// provided backend, or for the platform's default backend if an empty string is provided.
func GetDefaultProjectConfig(backend string) (*ProjectConfig, error) {
	if backend == "" {
		backend = compilation.DefaultCompilerBackend()
	}
	compilationConfig, err := compilation.NewCompilationConfig(backend)
	if err != nil {
		return nil, err
	}

	projectConfig := &ProjectConfig{
		Chains: []ChainConfig{
			{
				ChainID:   1,
				Name:      "Ethereum Mainnet",
				RPC:       []string{"https://ethereum-rpc.publicnode.com", "https://cloudflare-eth.com"},
				Supported: true,
			},
			{
				ChainID:   11155111,
				Name:      "Sepolia",
				RPC:       []string{"https://ethereum-sepolia-rpc.publicnode.com"},
				Supported: true,
			},
		},
		Sources: SourcesConfig{
			IpfsGateway:       "https://ipfs.io/ipfs/",
			FetchTimeoutMs:    3000,
			RequestsPerSecond: 0,
			CacheDirectory:    "",
		},
		RpcTimeoutMs: 5000,
		Compiler:     compilationConfig,
		Logging: LoggingConfig{
			Level:        zerolog.InfoLevel,
			LogDirectory: "",
			NoColor:      false,
		},
		MetricsEnabled: false,
	}

	return projectConfig, nil
}
