package verification

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/crytic/provenance/compilation/hashing"
	"github.com/crytic/provenance/compilation/types"
	"github.com/crytic/provenance/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestVerifyPrefersOriginalMetadata verifies a partial match is upgraded to a perfect one when a source variation
// reproduces the metadata hash embedded in the deployed bytecode.
func TestVerifyPrefersOriginalMetadata(t *testing.T) {
	sources := map[string]string{testContractPath: "contract Token {}\n"}
	metadataRaw := buildTestMetadata(t, testMetadataOptions{sources: sources})

	// The contract was deployed from sources with CRLF line endings
	document, err := types.UnmarshalMetadataDocument(metadataRaw)
	require.NoError(t, err)
	original, err := rewriteMetadataSources(document, document["sources"].(map[string]any), map[string]string{testContractPath: "contract Token {}\r\n"})
	require.NoError(t, err)
	originalRaw, err := types.MarshalMetadataDocument(original)
	require.NoError(t, err)
	deployed := withAuxdata(testLogic, ipfsAuxdata(t, originalRaw))

	oracle := &fakeOracle{
		creation: testCreationLogic,
		choose: func(input *types.CompilerInput) []byte {
			if input.Sources[testContractPath].Content == "contract Token {}\r\n" {
				return deployed
			}
			return withAuxdata(testLogic, ipfsAuxdata(t, metadataRaw))
		},
	}
	m := metrics.New()
	verifier := NewVerifier(NewMatcher(oracle, nil, nil, m), []ChainState{&fakeChainState{chainId: 1, bytecode: deployed}}, m)

	match, err := verifier.Verify(context.Background(), newTestContract(t, metadataRaw, sources), 1, testAddress, nil, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPerfect, match.Status)
	assert.Len(t, oracle.versions, 2)
	count, err := testutil.GatherAndCount(m.Gatherer(), "verification_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestVerifyPrefersOriginalMetadataWithFetchedSources verifies sources fetched during recompilation take part in the
// search for the original metadata, and that the deployed bytecode is only fetched once per compilation.
func TestVerifyPrefersOriginalMetadataWithFetchedSources(t *testing.T) {
	const libraryPath = "contracts/Lib.sol"
	tokenSource := "contract Token {}\n"
	librarySource := "library Lib {}\n"
	metadataRaw := buildTestMetadata(t, testMetadataOptions{sources: map[string]string{testContractPath: tokenSource, libraryPath: librarySource}})

	// The contract was deployed from sources with CRLF line endings
	document, err := types.UnmarshalMetadataDocument(metadataRaw)
	require.NoError(t, err)
	original, err := rewriteMetadataSources(document, document["sources"].(map[string]any), map[string]string{
		testContractPath: "contract Token {}\r\n",
		libraryPath:      "library Lib {}\r\n",
	})
	require.NoError(t, err)
	originalRaw, err := types.MarshalMetadataDocument(original)
	require.NoError(t, err)
	deployed := withAuxdata(testLogic, ipfsAuxdata(t, originalRaw))

	// Only the token source is available locally, the library is served by the gateway
	libraryCid, err := hashing.IpfsHash([]byte(librarySource))
	require.NoError(t, err)
	var requests atomic.Int32
	server := newGatewayServer(t, map[string]string{libraryCid: librarySource}, &requests)

	contract, err := NewCheckedContractFromFiles(metadataRaw, map[string]string{testContractPath: tokenSource})
	require.NoError(t, err)
	require.Contains(t, contract.Missing, libraryPath)

	oracle := &fakeOracle{
		creation: testCreationLogic,
		choose: func(input *types.CompilerInput) []byte {
			if input.Sources[libraryPath].Content == "library Lib {}\r\n" && input.Sources[testContractPath].Content == "contract Token {}\r\n" {
				return deployed
			}
			return withAuxdata(testLogic, ipfsAuxdata(t, metadataRaw))
		},
	}
	state := &fakeChainState{chainId: 1, bytecode: deployed}
	resolver := NewSourceResolver(server.URL+"/ipfs/", 0, 0, nil, nil)
	verifier := NewVerifier(NewMatcher(oracle, resolver, nil, nil), []ChainState{state}, nil)

	match, err := verifier.Verify(context.Background(), contract, 1, testAddress, nil, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPerfect, match.Status)
	assert.Len(t, oracle.versions, 2)
	assert.EqualValues(t, 1, requests.Load())
	assert.Equal(t, 2, state.bytecodeRequests)
}

// TestFindOriginalMetadata verifies the variation search reports the key of the variation it matched.
func TestFindOriginalMetadata(t *testing.T) {
	sources := map[string]string{testContractPath: "contract Token {}\n"}
	metadataRaw := buildTestMetadata(t, testMetadataOptions{sources: sources, embed: true})

	document, err := types.UnmarshalMetadataDocument(metadataRaw)
	require.NoError(t, err)
	original, err := rewriteMetadataSources(document, document["sources"].(map[string]any), map[string]string{testContractPath: "contract Token {}\r\n"})
	require.NoError(t, err)
	originalRaw, err := types.MarshalMetadataDocument(original)
	require.NoError(t, err)

	variation, found, err := FindOriginalMetadata(withAuxdata(testLogic, ipfsAuxdata(t, originalRaw)), metadataRaw, sources)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0.2", variation.Key)
	assert.Equal(t, originalRaw, variation.MetadataRaw)
	assert.Equal(t, "contract Token {}\r\n", *variation.Metadata.Sources[testContractPath].Content)

	// Bytecode without a metadata hash has nothing to search for
	_, found, err = FindOriginalMetadata(testLogic, metadataRaw, sources)
	require.NoError(t, err)
	assert.False(t, found)

	// No variation reproduces an unrelated hash
	_, found, err = FindOriginalMetadata(withAuxdata(testLogic, ipfsAuxdata(t, []byte("unrelated"))), metadataRaw, sources)
	require.NoError(t, err)
	assert.False(t, found)
}

// TestVerifyUnsupportedChain verifies requests for chains the verifier cannot reach are rejected as input errors.
func TestVerifyUnsupportedChain(t *testing.T) {
	metadataRaw := buildTestMetadata(t, testMetadataOptions{})
	verifier := NewVerifier(NewMatcher(&fakeOracle{}, nil, nil, nil), []ChainState{&fakeChainState{chainId: 1}, &fakeChainState{chainId: 10}}, nil)
	assert.Equal(t, []string{"1", "10"}, verifier.ChainIDs())

	_, err := verifier.Verify(context.Background(), newTestContract(t, metadataRaw, nil), 56, testAddress, nil, "")
	var inputError *InputError
	assert.True(t, errors.As(err, &inputError))
}

// TestVerifyCreate2 verifies a CREATE2 deployment is a perfect match on the pseudo chain.
func TestVerifyCreate2(t *testing.T) {
	metadataRaw := buildTestMetadata(t, testMetadataOptions{})
	verifier := NewVerifier(NewMatcher(&fakeOracle{creation: testCreationLogic, deployed: testLogic}, nil, nil, nil), nil, nil)

	deployer := common.HexToAddress("0x4e59b44847b379578588920cA78FbF26c0B4956C")
	var salt [32]byte
	salt[31] = 1
	expected := crypto.CreateAddress2(deployer, salt, crypto.Keccak256(testCreationLogic))

	match, err := verifier.VerifyCreate2(context.Background(), newTestContract(t, metadataRaw, nil), deployer.Hex(), "1", strings.ToLower(expected.Hex()), "")
	require.NoError(t, err)
	assert.Equal(t, StatusPerfect, match.Status)
	assert.Equal(t, Create2ChainID, match.ChainID)
	assert.Equal(t, expected.Hex(), match.Address)
	require.NotNil(t, match.Create2Args)
	assert.Equal(t, "1", match.Create2Args.Salt)
	assert.NotNil(t, match.StorageTimestamp)

	_, err = verifier.VerifyCreate2(context.Background(), newTestContract(t, metadataRaw, nil), deployer.Hex(), "2", expected.Hex(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "The provided create2 address doesn't match server's generated one.")
}

// TestValidateChainIDs verifies supported chains and the CREATE2 pseudo chain are accepted.
func TestValidateChainIDs(t *testing.T) {
	ids, err := ValidateChainIDs("1, 0,11155111", []string{"1", "11155111"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "0", "11155111"}, ids)

	_, err = ValidateChainIDs("1,56,abc", []string{"1"})
	require.Error(t, err)
	assert.Equal(t, "invalid chainIds: 56, abc", err.Error())
}
