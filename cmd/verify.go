package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/crytic/provenance/cmd/exitcodes"
	"github.com/crytic/provenance/logging/colors"
	"github.com/crytic/provenance/verification"
	"github.com/spf13/cobra"
)

// verifyCmd represents the command provider for verify
var verifyCmd = &cobra.Command{
	Use:               "verify",
	Short:             "Verifies a deployed contract against its metadata and sources",
	Long:              `Recompiles a contract from its metadata and sources, and matches the result against the bytecode deployed at an address`,
	Args:              cmdValidateNoArgs,
	ValidArgsFunction: cmdValidFlagArgs,
	RunE:              cmdRunVerify,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the verify command
	err := addVerifyFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the verify command", err)
	}

	// Add the verify command and its associated flags to the root command
	rootCmd.AddCommand(verifyCmd)
}

// cmdRunVerify executes the CLI verify command
func cmdRunVerify(cmd *cobra.Command, args []string) error {
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the verify command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	request, err := getVerifyRequest(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the verify command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	closeLogs, err := setupLogging(projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the verify command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer closeLogs()

	// Stop verifying on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	contract, err := loadCheckedContract(request.metadataPath, request.sourcesDirectory)
	if err != nil {
		cmdLogger.Error("Failed to run the verify command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	session, err := newVerificationSession(ctx, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the verify command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer session.Close()

	cmdLogger.Info("Verifying ", colors.Bold, contract.Name, colors.Reset, " at ", request.address, " on chain ", request.chainId)
	match, err := session.verifier.Verify(ctx, contract, request.chainId, request.address, request.contextVariables, request.creatorTxHash)
	if err != nil {
		cmdLogger.Error("Verification of ", contract.Name, " failed", err)
		return verificationError(err)
	}
	return reportMatch(match)
}

// verifyRequest holds the arguments of a verify invocation.
type verifyRequest struct {
	metadataPath     string
	sourcesDirectory string
	chainId          uint64
	address          string
	creatorTxHash    string
	contextVariables *verification.ContextVariables
}
