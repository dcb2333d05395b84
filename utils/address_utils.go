package utils

import (
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// HexStringToAddress converts a hex string (with or without the "0x" prefix) to a common.Address. Returns an error if
// the string is not exactly 20 bytes of valid hex.
func HexStringToAddress(s string) (common.Address, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, errors.Errorf("invalid address: %s", s)
	}
	return common.HexToAddress(trimmed), nil
}

// ChecksumAddress returns the EIP-55 mixed-case representation of the provided hex address.
func ChecksumAddress(s string) (string, error) {
	address, err := HexStringToAddress(s)
	if err != nil {
		return "", err
	}
	return address.Hex(), nil
}

// ValidateAddresses parses a comma-separated list of addresses and returns their checksummed representations. If any
// entry is invalid, an error naming every invalid entry is returned.
func ValidateAddresses(addresses string) ([]string, error) {
	var checksummed, invalid []string
	for _, entry := range strings.Split(addresses, ",") {
		address, err := ChecksumAddress(entry)
		if err != nil {
			invalid = append(invalid, strings.TrimSpace(entry))
			continue
		}
		checksummed = append(checksummed, address)
	}
	if len(invalid) > 0 {
		return nil, errors.Errorf("invalid addresses: %s", strings.Join(invalid, ", "))
	}
	return checksummed, nil
}

// AddressesEqual compares two hex addresses case-insensitively. Invalid addresses are never equal.
func AddressesEqual(a string, b string) bool {
	addressA, errA := HexStringToAddress(a)
	addressB, errB := HexStringToAddress(b)
	return errA == nil && errB == nil && addressA == addressB
}
