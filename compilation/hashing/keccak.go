package hashing

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/crypto"
)

// Keccak256 returns the keccak-256 digest of the provided data.
func Keccak256(data []byte) common.Hash {
	return crypto.Keccak256Hash(data)
}

// Keccak256Hex returns the 0x-prefixed, lowercase hex string of the keccak-256 digest of the provided data. This is
// the representation used by compiler metadata for its per-source "keccak256" field.
func Keccak256Hex(data []byte) string {
	return hexutil.Encode(crypto.Keccak256(data))
}
