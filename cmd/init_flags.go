package cmd

import (
	"github.com/crytic/provenance/config"
	"github.com/spf13/cobra"
)

// addInitFlags adds the various flags for the init command
func addInitFlags() error {
	// Output path for configuration
	initCmd.Flags().String("out", "", "output path for the new project configuration file (a .toml extension writes TOML)")

	// Source fetching
	initCmd.Flags().String("ipfs-gateway", "", "gateway missing sources are fetched from")
	initCmd.Flags().String("cache-dir", "", "directory fetched sources and creation transactions are cached in")

	// Metrics
	initCmd.Flags().String("metrics-file", "", "file verification metrics are written to; enables metrics")
	return nil
}

// updateProjectConfigWithInitFlags will update the given projectConfig with any CLI arguments that were provided to the init command
func updateProjectConfigWithInitFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Update the IPFS gateway
	if cmd.Flags().Changed("ipfs-gateway") {
		projectConfig.Sources.IpfsGateway, err = cmd.Flags().GetString("ipfs-gateway")
		if err != nil {
			return err
		}
	}

	// Update the cache directory
	if cmd.Flags().Changed("cache-dir") {
		projectConfig.Sources.CacheDirectory, err = cmd.Flags().GetString("cache-dir")
		if err != nil {
			return err
		}
	}

	// Update the metrics file
	if cmd.Flags().Changed("metrics-file") {
		projectConfig.MetricsFile, err = cmd.Flags().GetString("metrics-file")
		if err != nil {
			return err
		}
		projectConfig.MetricsEnabled = projectConfig.MetricsFile != ""
	}
	return projectConfig.Validate()
}
