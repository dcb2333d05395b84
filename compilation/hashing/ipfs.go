package hashing

import (
	"encoding/binary"

	"github.com/ipfs/go-cid"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

const (
	// ipfsMaxChunkSize is the size of the leaf chunks a file is split into before being merkleized.
	ipfsMaxChunkSize = 256 * 1024

	// ipfsMaxLinks is the maximum amount of children an intermediate DAG node can link to.
	ipfsMaxLinks = 174
)

// ipfsNode describes a node of the UnixFS DAG being built. size is the amount of file bytes the node represents,
// while blockSize is the cumulative size of every serialized block beneath (and including) the node.
type ipfsNode struct {
	hash      multihash.Multihash
	size      uint64
	blockSize uint64
}

// IpfsHash computes the CIDv0 (base58 "Qm..." form) that `ipfs add` with default settings would produce for the
// provided content. This mirrors the hashing the Solidity compiler performs when embedding ipfs links in metadata, so
// it uses a balanced DAG of 256KiB raw chunks wrapped in UnixFS/dag-pb protobuf framing.
func IpfsHash(data []byte) (string, error) {
	chunkCount := (len(data) + ipfsMaxChunkSize - 1) / ipfsMaxChunkSize
	if chunkCount == 0 {
		chunkCount = 1
	}

	level := make([]ipfsNode, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := i * ipfsMaxChunkSize
		end := min(start+ipfsMaxChunkSize, len(data))
		leaf, err := ipfsLeafNode(data[start:end])
		if err != nil {
			return "", err
		}
		level = append(level, leaf)
	}

	// Group nodes bottom up until a single root remains.
	for len(level) != 1 {
		next := make([]ipfsNode, 0, len(level)/ipfsMaxLinks+1)
		for start := 0; start < len(level); start += ipfsMaxLinks {
			end := min(start+ipfsMaxLinks, len(level))
			node, err := ipfsCombineLinks(level[start:end])
			if err != nil {
				return "", err
			}
			next = append(next, node)
		}
		level = next
	}

	return cid.NewCidV0(level[0].hash).String(), nil
}

// IpfsHashFromMultihash renders a raw sha2-256 multihash (as embedded in bytecode auxdata under the "ipfs" key) in its
// base58 CIDv0 string form.
func IpfsHashFromMultihash(raw []byte) (string, error) {
	decoded, err := multihash.Decode(raw)
	if err != nil {
		return "", errors.Wrap(err, "invalid ipfs multihash")
	}
	if decoded.Code != multihash.SHA2_256 {
		return "", errors.Errorf("unsupported ipfs multihash function 0x%x", decoded.Code)
	}
	return base58.Encode(raw), nil
}

// ipfsLeafNode wraps a chunk of file data in a UnixFS "file" message inside a dag-pb node and hashes it.
func ipfsLeafNode(chunk []byte) (ipfsNode, error) {
	unixfs := []byte{0x08, 0x02}
	if len(chunk) > 0 {
		unixfs = append(unixfs, 0x12)
		unixfs = binary.AppendUvarint(unixfs, uint64(len(chunk)))
		unixfs = append(unixfs, chunk...)
	}
	unixfs = append(unixfs, 0x18)
	unixfs = binary.AppendUvarint(unixfs, uint64(len(chunk)))

	block := protobufBytesField(0x0a, unixfs)
	hash, err := multihash.Sum(block, multihash.SHA2_256, -1)
	if err != nil {
		return ipfsNode{}, errors.WithStack(err)
	}
	return ipfsNode{hash: hash, size: uint64(len(chunk)), blockSize: uint64(len(block))}, nil
}

// ipfsCombineLinks builds the intermediate dag-pb node which links to the provided children.
func ipfsCombineLinks(children []ipfsNode) (ipfsNode, error) {
	var links, blockSizes []byte
	combined := ipfsNode{}
	for _, child := range children {
		combined.size += child.size
		combined.blockSize += child.blockSize

		// PBLink{Hash, Name: "", Tsize}
		link := protobufBytesField(0x0a, child.hash)
		link = append(link, 0x12, 0x00, 0x18)
		link = binary.AppendUvarint(link, child.blockSize)
		links = append(links, protobufBytesField(0x12, link)...)

		blockSizes = append(blockSizes, 0x20)
		blockSizes = binary.AppendUvarint(blockSizes, child.size)
	}

	unixfs := []byte{0x08, 0x02, 0x18}
	unixfs = binary.AppendUvarint(unixfs, combined.size)
	unixfs = append(unixfs, blockSizes...)
	block := append(links, protobufBytesField(0x0a, unixfs)...)

	hash, err := multihash.Sum(block, multihash.SHA2_256, -1)
	if err != nil {
		return ipfsNode{}, errors.WithStack(err)
	}
	combined.hash = hash
	combined.blockSize += uint64(len(block))
	return combined, nil
}

// protobufBytesField encodes a length-delimited protobuf field with the given tag byte.
func protobufBytesField(tag byte, data []byte) []byte {
	encoded := binary.AppendUvarint([]byte{tag}, uint64(len(data)))
	return append(encoded, data...)
}
