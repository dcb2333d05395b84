package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestGenerateVariations verifies the original sources come first, followed by every content and ending variation
// applied to all files alike.
func TestGenerateVariations(t *testing.T) {
	sources := map[string]string{
		"a.sol": "contract A {}\r\n",
		"b.sol": "contract B {} \n\n",
	}
	variations := GenerateVariations(sources)
	assert.Len(t, variations, 1+len(contentVariators)*len(endingVariators))
	assert.Equal(t, "original", variations[0].Key)
	assert.Equal(t, sources, variations[0].Sources)

	byKey := make(map[string]map[string]string)
	for _, variation := range variations {
		byKey[variation.Key] = variation.Sources
		assert.Len(t, variation.Sources, 2, variation.Key)
	}
	assert.Equal(t, map[string]string{"a.sol": "contract A {}", "b.sol": "contract B {}"}, byKey["0.0"])
	assert.Equal(t, map[string]string{"a.sol": "contract A {}\r\n", "b.sol": "contract B {}\r\n"}, byKey["0.2"])
	assert.Equal(t, map[string]string{"a.sol": "contract A {}\n\n", "b.sol": "contract B {} \n\n\n"}, byKey["1.3"])
	assert.Equal(t, map[string]string{"a.sol": "contract A {}\n\r\n", "b.sol": "contract B {} \n\n\r\n"}, byKey["1.4"])
}

// TestTrimEnd verifies trailing whitespace and byte order marks are removed.
func TestTrimEnd(t *testing.T) {
	assert.Equal(t, "contract A {}", trimEnd("contract A {} \t\r\n\uFEFF"))
	assert.Equal(t, "  contract A {}", trimEnd("  contract A {}"))
}
