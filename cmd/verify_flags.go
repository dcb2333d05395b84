package cmd

import (
	"fmt"
	"strconv"

	"github.com/crytic/provenance/config"
	"github.com/crytic/provenance/utils"
	"github.com/crytic/provenance/verification"
	"github.com/spf13/cobra"
)

// addVerifyFlags adds the various flags for the verify command
func addVerifyFlags() error {
	// Prevent alphabetical sorting of usage message
	verifyCmd.Flags().SortFlags = false

	// Metadata and sources
	verifyCmd.Flags().String("metadata", "", "path to the metadata file of the contract")
	verifyCmd.Flags().String("sources", "", "directory holding the source files of the contract")

	// Deployment
	verifyCmd.Flags().Uint64("chain", 1, "identifier of the chain the contract is deployed on")
	verifyCmd.Flags().String("address", "", "address the contract is deployed at")
	verifyCmd.Flags().String("creator-tx", "", "hash of the transaction which created the contract")
	verifyCmd.Flags().StringSlice("rpc", []string{}, "RPC endpoints of the chain, in priority order (overrides the config file)")

	// Simulation context
	verifyCmd.Flags().String("constructor-args", "", "ABI-encoded constructor arguments the contract was deployed with")
	verifyCmd.Flags().String("msg-sender", "", "account address which deployed the contract")

	// Shared configuration
	addConfigFlags(verifyCmd)

	for _, name := range []string{"metadata", "address"} {
		if err := verifyCmd.MarkFlagRequired(name); err != nil {
			return err
		}
	}
	return nil
}

// getVerifyRequest reads the verify flags, updating the project configuration with any RPC endpoints provided.
func getVerifyRequest(cmd *cobra.Command, projectConfig *config.ProjectConfig) (*verifyRequest, error) {
	var err error
	request := &verifyRequest{}

	if request.metadataPath, err = cmd.Flags().GetString("metadata"); err != nil {
		return nil, err
	}
	if request.sourcesDirectory, err = cmd.Flags().GetString("sources"); err != nil {
		return nil, err
	}
	if request.chainId, err = cmd.Flags().GetUint64("chain"); err != nil {
		return nil, err
	}
	if request.creatorTxHash, err = cmd.Flags().GetString("creator-tx"); err != nil {
		return nil, err
	}

	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return nil, err
	}
	addresses, err := utils.ValidateAddresses(address)
	if err != nil {
		return nil, err
	}
	if len(addresses) != 1 {
		return nil, fmt.Errorf("expected a single address, got %d", len(addresses))
	}
	request.address = addresses[0]

	// Update the chain endpoints
	if cmd.Flags().Changed("rpc") {
		endpoints, err := cmd.Flags().GetStringSlice("rpc")
		if err != nil {
			return nil, err
		}
		if chainConfig, ok := projectConfig.Chain(request.chainId); ok {
			chainConfig.RPC = endpoints
			chainConfig.Supported = true
		} else {
			projectConfig.Chains = append(projectConfig.Chains, config.ChainConfig{
				ChainID:   request.chainId,
				Name:      "Chain " + strconv.FormatUint(request.chainId, 10),
				RPC:       endpoints,
				Supported: true,
			})
		}
		if err = projectConfig.Validate(); err != nil {
			return nil, err
		}
	}

	if _, err = verification.ValidateChainIDs(strconv.FormatUint(request.chainId, 10), projectConfig.SupportedChainIDs()); err != nil {
		return nil, err
	}

	// Collect the simulation context
	constructorArguments, err := cmd.Flags().GetString("constructor-args")
	if err != nil {
		return nil, err
	}
	msgSender, err := cmd.Flags().GetString("msg-sender")
	if err != nil {
		return nil, err
	}
	if constructorArguments != "" || msgSender != "" {
		request.contextVariables = &verification.ContextVariables{
			AbiEncodedConstructorArguments: constructorArguments,
			MsgSender:                      msgSender,
		}
	}
	return request, nil
}
