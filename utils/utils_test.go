package utils

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/crytic/medusa-geth/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHexStringToAddress verifies addresses are parsed with or without a prefix and rejected when malformed.
func TestHexStringToAddress(t *testing.T) {
	t.Parallel()
	address, err := HexStringToAddress("5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", address.Hex())

	_, err = HexStringToAddress("0x1234")
	assert.Error(t, err)
	_, err = HexStringToAddress("0xzzzzb6053f3e94c9b9a09f33669435e7ef1beaed")
	assert.Error(t, err)
}

// TestValidateAddresses verifies lists are checksummed and invalid entries are all reported.
func TestValidateAddresses(t *testing.T) {
	t.Parallel()
	addresses, err := ValidateAddresses("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed, 0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")
	require.NoError(t, err)
	assert.Equal(t, []string{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"}, addresses)

	_, err = ValidateAddresses("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed,0x12,nope")
	assert.EqualError(t, err, "invalid addresses: 0x12, nope")

	assert.True(t, AddressesEqual("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"))
	assert.False(t, AddressesEqual("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x12"))
}

// TestDecodeHex verifies prefix handling and empty inputs.
func TestDecodeHex(t *testing.T) {
	t.Parallel()
	decoded, err := DecodeHex("0x6080")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, decoded)

	decoded, err = DecodeHex("6080")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, decoded)

	decoded, err = DecodeHex("0x")
	require.NoError(t, err)
	assert.Empty(t, decoded)

	_, err = DecodeHex("0x608")
	assert.Error(t, err)
	_, err = DecodeHex("0xgg")
	assert.Error(t, err)

	assert.Equal(t, "0xab", EnsureHexPrefix("ab"))
	assert.Equal(t, "0xab", EnsureHexPrefix("0xab"))
	assert.Equal(t, "ab", StripHexPrefix("0Xab"))
}

// TestReadSourceDirectory verifies nested files are keyed by slash-separated relative paths.
func TestReadSourceDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "contracts", "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "contracts", "A.sol"), []byte("contract A {}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "contracts", "lib", "B.sol"), []byte("contract B {}"), 0644))

	sources, err := ReadSourceDirectory(root)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"contracts/A.sol":     "contract A {}",
		"contracts/lib/B.sol": "contract B {}",
	}, sources)

	_, err = ReadSourceDirectory(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

// TestWriteFileAtomically verifies content and permissions of atomically written files.
func TestWriteFileAtomically(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "solc")
	require.NoError(t, WriteFileAtomically(path, []byte("binary"), 0755))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "binary", string(content))
	assert.True(t, FileExists(path))
	assert.False(t, FileExists(filepath.Dir(path)))

	if !IsWindowsEnvironment() {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
	}
}

// TestRunCommandWithInput verifies stdin is forwarded and output limits are enforced.
func TestRunCommandWithInput(t *testing.T) {
	t.Parallel()
	if IsWindowsEnvironment() {
		t.Skip("requires a unix shell")
	}

	stdout, _, _, err := RunCommandWithInput(exec.Command("cat"), []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(stdout))

	_, _, _, err = RunCommandWithInput(exec.Command("cat"), []byte("hello world"), 4)
	assert.ErrorIs(t, err, ErrOutputLimitExceeded)
}

// TestCopyChainConfig verifies copies are independent of the original.
func TestCopyChainConfig(t *testing.T) {
	t.Parallel()
	copied, err := CopyChainConfig(params.MainnetChainConfig)
	require.NoError(t, err)
	assert.Equal(t, params.MainnetChainConfig.ChainID, copied.ChainID)

	copied.ChainID.SetInt64(1337)
	assert.NotEqual(t, params.MainnetChainConfig.ChainID, copied.ChainID)
}
