package cmd

import (
	"github.com/crytic/provenance/utils"
	"github.com/spf13/cobra"
)

// addCreate2Flags adds the various flags for the create2 command
func addCreate2Flags() error {
	// Prevent alphabetical sorting of usage message
	create2Cmd.Flags().SortFlags = false

	create2Cmd.Flags().String("metadata", "", "path to the metadata file of the contract")
	create2Cmd.Flags().String("sources", "", "directory holding the source files of the contract")
	create2Cmd.Flags().String("deployer", "", "address of the contract which executed CREATE2")
	create2Cmd.Flags().String("salt", "", "salt passed to CREATE2, as 0x-prefixed hex or a decimal integer")
	create2Cmd.Flags().String("address", "", "address the contract was deployed at")
	create2Cmd.Flags().String("constructor-args", "", "ABI-encoded constructor arguments the contract was deployed with")

	// Shared configuration
	addConfigFlags(create2Cmd)

	for _, name := range []string{"metadata", "deployer", "salt", "address"} {
		if err := create2Cmd.MarkFlagRequired(name); err != nil {
			return err
		}
	}
	return nil
}

// getCreate2Request reads the create2 flags.
func getCreate2Request(cmd *cobra.Command) (*create2Request, error) {
	var err error
	request := &create2Request{}
	for name, value := range map[string]*string{
		"metadata":         &request.metadataPath,
		"sources":          &request.sourcesDirectory,
		"deployer":         &request.deployer,
		"salt":             &request.salt,
		"address":          &request.address,
		"constructor-args": &request.constructorArguments,
	} {
		if *value, err = cmd.Flags().GetString(name); err != nil {
			return nil, err
		}
	}

	if _, err = utils.ValidateAddresses(request.deployer + "," + request.address); err != nil {
		return nil, err
	}
	return request, nil
}
