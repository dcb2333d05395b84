package utils

import (
	"strings"

	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/pkg/errors"
)

// StripHexPrefix removes a leading "0x" or "0X" from s, if present.
func StripHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// EnsureHexPrefix adds a leading "0x" to s if it is not already present.
func EnsureHexPrefix(s string) string {
	return "0x" + StripHexPrefix(s)
}

// DecodeHex decodes a hex string with or without the "0x" prefix. An empty string or a bare "0x" decodes to an empty
// slice.
func DecodeHex(s string) ([]byte, error) {
	stripped := StripHexPrefix(strings.TrimSpace(s))
	if len(stripped)%2 != 0 {
		return nil, errors.Errorf("hex string has odd length: %s", s)
	}
	decoded, err := hexutil.Decode("0x" + stripped)
	if err != nil && stripped != "" {
		return nil, errors.Wrapf(err, "invalid hex string %q", s)
	}
	if decoded == nil {
		decoded = []byte{}
	}
	return decoded, nil
}
