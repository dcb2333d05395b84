package cmd

import (
	"os"

	"github.com/crytic/provenance/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootCmd represents the root CLI command object which all other commands stem from.
var rootCmd = &cobra.Command{
	Use:   "provenance",
	Short: "A smart contract source verification engine",
	Long:  "provenance recompiles Solidity contracts from their metadata and sources, and checks the result against deployed bytecode",
}

// cmdLogger is the logger that will be used for the cmd package
var cmdLogger = logging.NewLogger(zerolog.InfoLevel).NewSubLogger("module", logging.CLI_SERVICE)

// Execute provides an exportable function to invoke the CLI. Returns an error if one was encountered.
func Execute() error {
	cmdLogger.AddWriter(os.Stdout, logging.UNSTRUCTURED, true)
	return rootCmd.Execute()
}
