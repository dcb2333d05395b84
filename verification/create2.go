package verification

import (
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/crytic/medusa-geth/rlp"
	"github.com/crytic/provenance/utils"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// NormalizeSalt converts a CREATE2 salt given as a 0x-prefixed hex string or a decimal integer into a 32-byte word.
func NormalizeSalt(salt string) (common.Hash, error) {
	salt = strings.TrimSpace(salt)
	if strings.HasPrefix(salt, "0x") || strings.HasPrefix(salt, "0X") {
		digits := salt[2:]
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		decoded, err := hexutil.Decode("0x" + digits)
		if err != nil {
			return common.Hash{}, newInputError("invalid salt %q: %v", salt, err)
		}
		if len(decoded) > common.HashLength {
			return common.Hash{}, newInputError("invalid salt %q: longer than 32 bytes", salt)
		}
		return common.BytesToHash(decoded), nil
	}

	value, err := uint256.FromDecimal(salt)
	if err != nil {
		return common.Hash{}, newInputError("invalid salt %q: %v", salt, err)
	}
	return common.Hash(value.Bytes32()), nil
}

// CalculateCreate2Address computes the address of a contract deployed with CREATE2 by the deployer, with the salt and
// the creation bytecode followed by the ABI-encoded constructor arguments. Returns the checksummed address.
func CalculateCreate2Address(deployer string, salt string, creationBytecode string, abiEncodedConstructorArguments string) (string, error) {
	deployerAddress, err := utils.HexStringToAddress(deployer)
	if err != nil {
		return "", newInputError("invalid deployer address %q", deployer)
	}
	saltWord, err := NormalizeSalt(salt)
	if err != nil {
		return "", err
	}
	initCode, err := utils.DecodeHex(utils.StripHexPrefix(creationBytecode) + utils.StripHexPrefix(abiEncodedConstructorArguments))
	if err != nil {
		return "", newInputError("invalid init code: %v", err)
	}

	return crypto.CreateAddress2(deployerAddress, saltWord, crypto.Keccak256(initCode)).Hex(), nil
}

// CalculateCreateAddress computes the address of a contract created by a transaction from the sender with the nonce,
// as keccak256(rlp([sender, nonce]))[12:]. Returns the checksummed address.
func CalculateCreateAddress(sender common.Address, nonce uint64) (string, error) {
	encoded, err := rlp.EncodeToBytes([]any{sender, nonce})
	if err != nil {
		return "", errors.WithStack(err)
	}
	return common.BytesToAddress(crypto.Keccak256(encoded)[12:]).Hex(), nil
}

// ExtractAbiEncodedConstructorArguments returns the bytes of the on-chain creation bytecode following the compiled
// creation bytecode, 0x-prefixed. An empty string is returned when both have the same length.
func ExtractAbiEncodedConstructorArguments(onchainCreationBytecode string, compiledCreationBytecode string) string {
	if len(onchainCreationBytecode) <= len(compiledCreationBytecode) {
		return ""
	}
	start := strings.Index(onchainCreationBytecode, compiledCreationBytecode)
	if start < 0 {
		start = 0
	}
	return "0x" + onchainCreationBytecode[start+len(compiledCreationBytecode):]
}
