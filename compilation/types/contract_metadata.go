package types

import (
	"encoding/binary"
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/provenance/compilation/hashing"
	"github.com/fxamacker/cbor"
	"github.com/pkg/errors"
)

// Auxdata is the CBOR-encoded structure the Solidity compiler appends to runtime bytecode (unless explicitly directed
// not to). It carries a content hash of the contract metadata document and the compiler version.
// Reference: https://docs.soliditylang.org/en/v0.8.16/metadata.html#encoding-of-the-metadata-hash-in-the-bytecode
type Auxdata map[string]any

// auxdataLengthSize is the size of the big-endian length suffix that follows the CBOR map.
const auxdataLengthSize = 2

// metadataHashKeys defines the keys in Auxdata which contain a metadata content hash.
var metadataHashKeys = [...]string{
	"ipfs",
	"bzzr0",
	"bzzr1",
}

// SplitAuxdata separates the provided bytecode into its logic bytes and the CBOR auxdata trailer (without the two
// length bytes). If the length suffix points outside the bytecode or the trailer is not a valid CBOR map, the bytecode is
// considered to have no auxdata, and it is returned as-is alongside a nil auxdata slice.
func SplitAuxdata(bytecode []byte) ([]byte, []byte) {
	if len(bytecode) < auxdataLengthSize {
		return bytecode, nil
	}

	cborLength := int(binary.BigEndian.Uint16(bytecode[len(bytecode)-auxdataLengthSize:]))
	logicLength := len(bytecode) - auxdataLengthSize - cborLength
	if logicLength <= 0 {
		return bytecode, nil
	}

	auxdata := bytecode[logicLength : len(bytecode)-auxdataLengthSize]
	if _, err := decodeAuxdata(auxdata); err != nil {
		return bytecode, nil
	}
	return bytecode[:logicLength], auxdata
}

// DecodeAuxdata extracts and decodes the auxdata trailer of the provided bytecode. Returns an error if the bytecode
// carries no decodable trailer.
func DecodeAuxdata(bytecode []byte) (Auxdata, error) {
	if len(bytecode) == 0 {
		return nil, errors.New("bytecode cannot be empty")
	}
	_, auxdata := SplitAuxdata(bytecode)
	if auxdata == nil {
		return nil, errors.New("auxdata is not in the execution bytecode")
	}
	return decodeAuxdata(auxdata)
}

func decodeAuxdata(data []byte) (Auxdata, error) {
	var auxdata Auxdata
	if err := cbor.Unmarshal(data, &auxdata); err != nil {
		return nil, errors.WithStack(err)
	}
	if auxdata == nil {
		return nil, errors.New("auxdata is not a CBOR map")
	}
	return auxdata, nil
}

// DoesContainMetadataHash returns true if the bytecode's decoded auxdata holds an ipfs, bzzr0, or bzzr1 content hash.
func DoesContainMetadataHash(bytecode []byte) bool {
	auxdata, err := DecodeAuxdata(bytecode)
	if err != nil {
		return false
	}
	for _, key := range metadataHashKeys {
		if value, ok := auxdata[key].([]byte); ok && len(value) > 0 {
			return true
		}
	}
	return false
}

// Ipfs returns the CIDv0 of the metadata document referenced by the auxdata, if one is present.
func (a Auxdata) Ipfs() (string, bool) {
	raw, ok := a["ipfs"].([]byte)
	if !ok {
		return "", false
	}
	cid, err := hashing.IpfsHashFromMultihash(raw)
	if err != nil {
		return "", false
	}
	return cid, true
}

// Bzzr0 returns the legacy swarm hash of the metadata document referenced by the auxdata, if one is present.
func (a Auxdata) Bzzr0() (common.Hash, bool) {
	return a.swarmHash("bzzr0")
}

// Bzzr1 returns the swarm hash of the metadata document referenced by the auxdata, if one is present.
func (a Auxdata) Bzzr1() (common.Hash, bool) {
	return a.swarmHash("bzzr1")
}

func (a Auxdata) swarmHash(key string) (common.Hash, bool) {
	raw, ok := a[key].([]byte)
	if !ok || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}

// SolcVersion returns the compiler version recorded in the auxdata. Release builds store it as three bytes, while
// prerelease builds store the full version string.
func (a Auxdata) SolcVersion() (string, bool) {
	switch version := a["solc"].(type) {
	case []byte:
		if len(version) != 3 {
			return "", false
		}
		return fmt.Sprintf("%d.%d.%d", version[0], version[1], version[2]), true
	case string:
		return version, true
	default:
		return "", false
	}
}
