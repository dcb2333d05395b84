package hashing

import (
	"encoding/binary"

	"github.com/crytic/medusa-geth/common"
	"golang.org/x/crypto/sha3"
)

// swarmChunkSize is the size of a swarm chunk. Intermediate chunks hold swarmChunkSize/32 child references.
const swarmChunkSize = 0x1000

// SwarmHashBzzr0 computes the legacy swarm hash ("bzzr0") the Solidity compiler embedded in metadata prior to v0.5.11.
func SwarmHashBzzr0(data []byte) common.Hash {
	return swarmHashIntermediate(data)
}

// SwarmHashBzzr1 computes the binary-merkle-tree swarm hash ("bzzr1") the Solidity compiler embedded in metadata from
// v0.5.11 until ipfs became the default. Empty input hashes to the zero hash.
func SwarmHashBzzr1(data []byte) common.Hash {
	if len(data) == 0 {
		return common.Hash{}
	}
	return swarmChunkHash(data, false)
}

func swarmHashIntermediate(data []byte) common.Hash {
	if len(data) <= swarmChunkSize {
		return swarmHashSimple(data, len(data))
	}

	maxRepresentedSize := swarmMaxRepresentedSize(len(data))
	var innerNodes []byte
	for i := 0; i < len(data); i += maxRepresentedSize {
		end := min(i+maxRepresentedSize, len(data))
		innerNodes = append(innerNodes, swarmHashIntermediate(data[i:end]).Bytes()...)
	}
	return swarmHashSimple(innerNodes, len(data))
}

func swarmHashSimple(data []byte, size int) common.Hash {
	return keccakConcat(littleEndianSize(size), data)
}

func swarmChunkHash(data []byte, forceHigherLevel bool) common.Hash {
	var dataToHash []byte
	if len(data) < swarmChunkSize || (len(data) == swarmChunkSize && !forceHigherLevel) {
		dataToHash = make([]byte, len(data), swarmChunkSize)
		copy(dataToHash, data)
	} else {
		maxRepresentedSize := swarmMaxRepresentedSize(len(data))

		// A remainder of exactly one chunk still needs its own level unless we are at the lowest one.
		forceHigher := maxRepresentedSize > swarmChunkSize
		for i := 0; i < len(data); i += maxRepresentedSize {
			end := min(i+maxRepresentedSize, len(data))
			dataToHash = append(dataToHash, swarmChunkHash(data[i:end], forceHigher).Bytes()...)
		}
	}

	padded := make([]byte, swarmChunkSize)
	copy(padded, dataToHash)
	root := bmtHash(padded)
	return keccakConcat(littleEndianSize(len(data)), root.Bytes())
}

func swarmMaxRepresentedSize(length int) int {
	maxRepresentedSize := swarmChunkSize
	for maxRepresentedSize*(swarmChunkSize/32) < length {
		maxRepresentedSize *= swarmChunkSize / 32
	}
	return maxRepresentedSize
}

// bmtHash computes the binary merkle tree root over 32-byte segment pairs.
func bmtHash(data []byte) common.Hash {
	if len(data) <= 64 {
		return keccakConcat(data)
	}
	mid := len(data) / 2
	left := bmtHash(data[:mid])
	right := bmtHash(data[mid:])
	return keccakConcat(left.Bytes(), right.Bytes())
}

func keccakConcat(parts ...[]byte) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	for _, part := range parts {
		hasher.Write(part)
	}
	var h common.Hash
	hasher.Sum(h[:0])
	return h
}

func littleEndianSize(size int) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(size))
}
