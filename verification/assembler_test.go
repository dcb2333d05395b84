package verification

import (
	"encoding/json"
	"testing"

	"github.com/crytic/provenance/compilation/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAssembleOutputSelection verifies the compilation target always receives the fixed output selection and that the
// compilation target is not forwarded to the compiler.
func TestAssembleOutputSelection(t *testing.T) {
	raw := []byte(`{
		"compiler": {"version": "0.8.19+commit.7dd6d404"},
		"language": "Solidity",
		"settings": {
			"compilationTarget": {"contracts/Token.sol": "Token"},
			"outputSelection": {"*": {"Token": ["abi"], "Other": ["abi"]}},
			"libraries": {"contracts/Math.sol": {"Math": "0xc0ffee254729296a45a3885639ac7e10f9d54979"}}
		},
		"sources": {}
	}`)
	metadata, err := types.ParseMetadata(raw)
	require.NoError(t, err)

	assembled, err := Assemble(metadata, map[string]string{testContractPath: testSource})
	require.NoError(t, err)
	assert.Equal(t, testContractPath, assembled.ContractPath)
	assert.Equal(t, testContractName, assembled.ContractName)

	settings := assembled.Input.Settings
	assert.NotContains(t, settings, "compilationTarget")
	selection := settings["outputSelection"].(map[string]any)["*"].(map[string]any)
	assert.Equal(t, []any{
		"evm.bytecode.object",
		"evm.deployedBytecode.object",
		"evm.deployedBytecode.immutableReferences",
		"metadata",
	}, selection["Token"])
	assert.Equal(t, []any{"abi"}, selection["Other"])
	assert.Equal(t, map[string]any{}, settings["metadata"])
	assert.Contains(t, settings["libraries"].(map[string]any)[""], "contracts/Math.sol")
	assert.Equal(t, testSource, assembled.Input.Sources[testContractPath].Content)

	// The metadata document is left untouched
	assert.Contains(t, metadata.Settings, "compilationTarget")
	assert.Equal(t, []any{"abi"}, metadata.Settings["outputSelection"].(map[string]any)["*"].(map[string]any)["Token"])
}

// TestAssembleInliner verifies the optimizer inliner flag is dropped only for the compiler versions that miscompile
// with it.
func TestAssembleInliner(t *testing.T) {
	tests := []struct {
		version string
		dropped bool
	}{
		{"0.8.2+commit.661d1103", true},
		{"0.8.4+commit.c7e474f2", true},
		{"0.8.5+commit.a4f2e591", false},
		{"0.8.1+commit.df193b15", false},
	}
	for _, test := range tests {
		metadata, err := types.ParseMetadata(buildTestMetadata(t, testMetadataOptions{version: test.version, optimizer: true, inliner: true}))
		require.NoError(t, err)

		assembled, err := Assemble(metadata, nil)
		require.NoError(t, err)
		details := assembled.Input.Settings["optimizer"].(map[string]any)["details"].(map[string]any)
		if test.dropped {
			assert.NotContains(t, details, "inliner", test.version)
		} else {
			assert.Contains(t, details, "inliner", test.version)
		}
		assert.Contains(t, details, "yul", test.version)
	}
}

// TestAssembleSerializable verifies the assembled input serializes to standard JSON.
func TestAssembleSerializable(t *testing.T) {
	metadata, err := types.ParseMetadata(buildTestMetadata(t, testMetadataOptions{optimizer: true}))
	require.NoError(t, err)
	assembled, err := Assemble(metadata, map[string]string{testContractPath: testSource})
	require.NoError(t, err)

	encoded, err := json.Marshal(assembled.Input)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"runs":200`)
	assert.Contains(t, string(encoded), `"language":"Solidity"`)
}

// TestAssembleInvalidTarget verifies metadata without exactly one compilation target is rejected.
func TestAssembleInvalidTarget(t *testing.T) {
	metadata, err := types.ParseMetadata([]byte(`{"compiler":{"version":"0.8.19"},"settings":{"compilationTarget":{"a.sol":"A","b.sol":"B"}}}`))
	require.NoError(t, err)

	_, err = Assemble(metadata, nil)
	var inputError *InputError
	require.True(t, errors.As(err, &inputError))
	assert.Equal(t, "Invalid compilationTarget: expected exactly one entry, found 2", inputError.Message)
}
