package verification

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/provenance/chain"
	"github.com/crytic/provenance/chain/rpc"
	"github.com/crytic/provenance/compilation"
	"github.com/crytic/provenance/compilation/hashing"
	"github.com/crytic/provenance/compilation/types"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	testContractPath = "contracts/Token.sol"
	testContractName = "Token"
	testSource       = "pragma solidity ^0.8.0;\ncontract Token {}\n"
)

var (
	// testLogic and otherTestLogic are short runtime prologues used as the logic half of test bytecode.
	testLogic      = hexutil.MustDecode("0x6080604052348015600f57600080fd5b50")
	otherTestLogic = hexutil.MustDecode("0x6080604052600436106100295760003560e01c")

	// testCreationLogic is the logic half of test creation bytecode.
	testCreationLogic = hexutil.MustDecode("0x608060405234801561001057600080fd5b5060")
)

// testMetadataOptions describes the variable parts of a test metadata document.
type testMetadataOptions struct {
	version   string
	optimizer bool
	inliner   bool
	sources   map[string]string
	embed     bool
}

// buildTestMetadata serializes a metadata document targeting testContractName.
func buildTestMetadata(t *testing.T, options testMetadataOptions) []byte {
	if options.version == "" {
		options.version = "0.8.19+commit.7dd6d404"
	}
	if options.sources == nil {
		options.sources = map[string]string{testContractPath: testSource}
	}

	sources := make(map[string]any)
	for path, content := range options.sources {
		source := map[string]any{
			"keccak256": hashing.Keccak256Hex([]byte(content)),
			"license":   "MIT",
		}
		if options.embed {
			source["content"] = content
		} else {
			cid, err := hashing.IpfsHash([]byte(content))
			require.NoError(t, err)
			source["urls"] = []any{"bzz-raw://" + common.Bytes2Hex(hashing.SwarmHashBzzr1([]byte(content)).Bytes()), "dweb:/ipfs/" + cid}
		}
		sources[path] = source
	}

	optimizer := map[string]any{"enabled": options.optimizer, "runs": 200}
	if options.inliner {
		optimizer["details"] = map[string]any{"inliner": true, "yul": true}
	}

	document := map[string]any{
		"compiler": map[string]any{"version": options.version},
		"language": "Solidity",
		"settings": map[string]any{
			"compilationTarget": map[string]any{testContractPath: testContractName},
			"evmVersion":        "london",
			"libraries":         map[string]any{},
			"metadata":          map[string]any{"bytecodeHash": "ipfs"},
			"optimizer":         optimizer,
			"remappings":        []any{},
		},
		"sources": sources,
		"version": 1,
	}
	raw, err := types.MarshalMetadataDocument(document)
	require.NoError(t, err)
	return raw
}

// buildAuxdata hand-encodes a CBOR map {hashKey: hash, "solc": 0.8.19} the way the compiler emits it.
func buildAuxdata(hashKey string, hash []byte) []byte {
	encoded := []byte{0xa2, 0x60 + byte(len(hashKey))}
	encoded = append(encoded, hashKey...)
	encoded = append(encoded, 0x58, byte(len(hash)))
	encoded = append(encoded, hash...)
	return append(encoded, 0x64, 's', 'o', 'l', 'c', 0x43, 0, 8, 19)
}

// withAuxdata appends an auxdata trailer and its length suffix to logic bytes.
func withAuxdata(logic []byte, auxdata []byte) []byte {
	bytecode := append(append([]byte{}, logic...), auxdata...)
	return binary.BigEndian.AppendUint16(bytecode, uint16(len(auxdata)))
}

// ipfsAuxdata builds an auxdata trailer referencing the ipfs hash of the provided metadata document.
func ipfsAuxdata(t *testing.T, metadataRaw []byte) []byte {
	cid, err := hashing.IpfsHash(metadataRaw)
	require.NoError(t, err)
	multihash, err := base58.Decode(cid)
	require.NoError(t, err)
	return buildAuxdata("ipfs", multihash)
}

// initCodeReturning builds creation bytecode which deploys runtime: CODECOPY of the trailing runtime then RETURN.
// Anything appended after the runtime, such as constructor arguments, is ignored.
func initCodeReturning(runtime []byte) []byte {
	length := binary.BigEndian.AppendUint16(nil, uint16(len(runtime)))
	initCode := []byte{0x61, length[0], length[1], 0x60, 0x0e, 0x60, 0x00, 0x39, 0x61, length[0], length[1], 0x60, 0x00, 0xf3}
	return append(initCode, runtime...)
}

// fakeOracle compiles by returning fixed bytecode, or bytecode chosen from the compiler input.
type fakeOracle struct {
	creation []byte
	deployed []byte

	// choose overrides the deployed bytecode based on the input, when set.
	choose func(input *types.CompilerInput) []byte

	// deployedObject overrides the deployed bytecode with raw hex, which may hold library placeholders, when set.
	deployedObject string

	diagnostics []string
	err         error

	lock     sync.Mutex
	versions []string
}

func (f *fakeOracle) Compile(_ context.Context, version string, input *types.CompilerInput) (*compilation.CompileResult, error) {
	f.lock.Lock()
	f.versions = append(f.versions, version)
	f.lock.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if len(f.diagnostics) > 0 {
		return &compilation.CompileResult{Output: &types.CompilerOutput{}, Errors: f.diagnostics}, nil
	}

	deployed := f.deployed
	if f.choose != nil {
		deployed = f.choose(input)
	}
	deployedObject := common.Bytes2Hex(deployed)
	if f.deployedObject != "" {
		deployedObject = f.deployedObject
	}
	contract := types.CompilerOutputContract{
		Evm: &types.CompilerOutputEvm{
			Bytecode:         &types.CompilerOutputBytecode{Object: common.Bytes2Hex(f.creation)},
			DeployedBytecode: &types.CompilerOutputBytecode{Object: deployedObject},
		},
	}
	return &compilation.CompileResult{
		Output: &types.CompilerOutput{
			Contracts: map[string]map[string]types.CompilerOutputContract{
				testContractPath: {testContractName: contract},
			},
		},
	}, nil
}

// fakeChainState serves fixed bytecode and creation transactions.
type fakeChainState struct {
	chainId      uint64
	bytecode     []byte
	bytecodeErr  error
	transactions map[common.Hash]*rpc.CreationTransaction

	// bytecodeRequests counts GetBytecode calls.
	bytecodeRequests int
}

func (f *fakeChainState) ChainID() uint64 {
	return f.chainId
}

func (f *fakeChainState) GetBytecode(_ context.Context, _ common.Address) ([]byte, error) {
	f.bytecodeRequests++
	return f.bytecode, f.bytecodeErr
}

func (f *fakeChainState) GetCreationTransaction(_ context.Context, hash common.Hash) (*rpc.CreationTransaction, error) {
	tx, ok := f.transactions[hash]
	if !ok {
		return nil, rpc.ErrTransactionNotFound
	}
	return tx, nil
}

// fakeSimulator returns fixed runtime bytecode and records the last request.
type fakeSimulator struct {
	runtime []byte
	err     error
	request chain.SimulationRequest
}

func (f *fakeSimulator) SimulateCreation(request chain.SimulationRequest) ([]byte, error) {
	f.request = request
	if f.err != nil {
		return nil, f.err
	}
	return f.runtime, nil
}

// newTestContract creates a CheckedContract from the provided metadata and the default source set.
func newTestContract(t *testing.T, metadataRaw []byte, sources map[string]string) *CheckedContract {
	if sources == nil {
		sources = map[string]string{testContractPath: testSource}
	}
	contract, err := NewCheckedContract(metadataRaw, sources, nil, nil)
	require.NoError(t, err)
	return contract
}

var errUnreachable = errors.New("connection refused")
