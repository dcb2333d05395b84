package types

import (
	"encoding/hex"
	"strings"

	"github.com/crytic/medusa-geth/crypto"
	"github.com/pkg/errors"
)

const (
	// LibraryPlaceholderPrefix marks the start of an unlinked library reference in hex bytecode.
	LibraryPlaceholderPrefix = "__$"

	// LibraryPlaceholderLength is the width, in hex characters, of a library placeholder (20 bytes).
	LibraryPlaceholderLength = 40
)

// GenerateLibraryPlaceholder creates the placeholder the compiler emits for the library with the provided fully
// qualified name ("path:Name"): the first 34 hex characters of its keccak256 hash wrapped in "__$" and "$__".
func GenerateLibraryPlaceholder(fullyQualifiedName string) string {
	hash := crypto.Keccak256Hash([]byte(fullyQualifiedName))
	return LibraryPlaceholderPrefix + hex.EncodeToString(hash.Bytes())[:34] + "$__"
}

// AddLibraryAddresses resolves every library placeholder in the template hex bytecode using the reference hex bytecode
// as the address source: the address is read from the reference at the placeholder's offset and width. Both strings
// must share the same prefix convention (both or neither 0x-prefixed) so offsets line up.
// Returns the template with all placeholders substituted, and a mapping of placeholder to the resolved address.
func AddLibraryAddresses(template string, reference string) (string, map[string]string, error) {
	libraryMap := make(map[string]string)
	for index := strings.Index(template, LibraryPlaceholderPrefix); index != -1; index = strings.Index(template, LibraryPlaceholderPrefix) {
		if index+LibraryPlaceholderLength > len(template) {
			return "", nil, errors.Errorf("truncated library placeholder at offset %d", index)
		}
		if index+LibraryPlaceholderLength > len(reference) {
			return "", nil, errors.Errorf("reference bytecode too short to resolve library placeholder at offset %d", index)
		}

		placeholder := template[index : index+LibraryPlaceholderLength]
		address := reference[index : index+LibraryPlaceholderLength]
		if strings.Contains(address, LibraryPlaceholderPrefix) {
			return "", nil, errors.Errorf("reference bytecode is not linked at offset %d", index)
		}

		libraryMap[placeholder] = address
		template = strings.ReplaceAll(template, placeholder, address)
	}
	return template, libraryMap, nil
}
