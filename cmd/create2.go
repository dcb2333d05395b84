package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/crytic/provenance/cmd/exitcodes"
	"github.com/spf13/cobra"
)

// create2Cmd represents the command provider for create2
var create2Cmd = &cobra.Command{
	Use:               "create2",
	Short:             "Verifies a contract deployed through CREATE2",
	Long:              `Recompiles a contract from its metadata and sources, and checks that deploying it through CREATE2 with the given deployer and salt yields the given address`,
	Args:              cmdValidateNoArgs,
	ValidArgsFunction: cmdValidFlagArgs,
	RunE:              cmdRunCreate2,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the create2 command
	err := addCreate2Flags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the create2 command", err)
	}

	// Add the create2 command and its associated flags to the root command
	rootCmd.AddCommand(create2Cmd)
}

// cmdRunCreate2 executes the CLI create2 command
func cmdRunCreate2(cmd *cobra.Command, args []string) error {
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the create2 command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	request, err := getCreate2Request(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the create2 command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	closeLogs, err := setupLogging(projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the create2 command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	contract, err := loadCheckedContract(request.metadataPath, request.sourcesDirectory)
	if err != nil {
		cmdLogger.Error("Failed to run the create2 command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	session, err := newVerificationSession(ctx, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the create2 command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer session.Close()

	match, err := session.verifier.VerifyCreate2(ctx, contract, request.deployer, request.salt, request.address, request.constructorArguments)
	if err != nil {
		cmdLogger.Error("Verification of ", contract.Name, " failed", err)
		return verificationError(err)
	}
	return reportMatch(match)
}

// create2Request holds the arguments of a create2 invocation.
type create2Request struct {
	metadataPath         string
	sourcesDirectory     string
	deployer             string
	salt                 string
	address              string
	constructorArguments string
}
