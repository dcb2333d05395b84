package types

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Metadata describes the metadata document the Solidity compiler emits alongside a contract. It records the exact
// sources, settings, and compiler version used to produce the contract.
// Reference: https://docs.soliditylang.org/en/latest/metadata.html
type Metadata struct {
	// Compiler describes the compiler which produced the contract.
	Compiler MetadataCompiler `json:"compiler"`

	// Language describes the source language, e.g. "Solidity".
	Language string `json:"language"`

	// Settings holds the compiler settings, including the compilation target. It is kept as a generic document since
	// any compiler flag may appear in it.
	Settings map[string]any `json:"settings"`

	// Sources maps each source path to its descriptor.
	Sources map[string]MetadataSource `json:"sources"`
}

// MetadataCompiler describes the compiler section of a Metadata document.
type MetadataCompiler struct {
	// Version is the full compiler version string, e.g. "0.8.4+commit.c7e474f2".
	Version string `json:"version"`
}

// MetadataSource describes a single source file referenced by a Metadata document.
type MetadataSource struct {
	// Keccak256 is the 0x-prefixed keccak256 hash of the source text.
	Keccak256 string `json:"keccak256"`

	// Content holds the source text, if it was embedded in the metadata.
	Content *string `json:"content,omitempty"`

	// URLs lists locations the source text may be retrieved from.
	URLs []string `json:"urls,omitempty"`

	// License is the SPDX license identifier of the source, if any.
	License string `json:"license,omitempty"`
}

// ParseMetadata decodes a raw metadata document. Numbers are kept as json.Number so settings survive re-serialization
// unchanged.
func ParseMetadata(raw []byte) (*Metadata, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var metadata Metadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, errors.Wrap(err, "unable to parse contract metadata")
	}
	return &metadata, nil
}

// CompilationTarget returns the single (path, contract name) pair described by settings.compilationTarget. The count
// of entries found is returned so callers can report absent or ambiguous targets.
func (m *Metadata) CompilationTarget() (string, string, int) {
	target, ok := m.Settings["compilationTarget"].(map[string]any)
	if !ok || len(target) != 1 {
		return "", "", len(target)
	}
	for path, name := range target {
		contractName, ok := name.(string)
		if !ok {
			return "", "", 0
		}
		return path, contractName, 1
	}
	return "", "", 0
}

// OptimizerEnabled returns true if settings.optimizer.enabled is set.
func (m *Metadata) OptimizerEnabled() bool {
	optimizer, ok := m.Settings["optimizer"].(map[string]any)
	if !ok {
		return false
	}
	enabled, _ := optimizer["enabled"].(bool)
	return enabled
}

// EvmVersion returns settings.evmVersion, or an empty string if it is not set.
func (m *Metadata) EvmVersion() string {
	evmVersion, _ := m.Settings["evmVersion"].(string)
	return evmVersion
}

// Libraries returns settings.libraries as a flat mapping of "path:Name" (or "Name") to address.
func (m *Metadata) Libraries() map[string]string {
	libraries := make(map[string]string)
	raw, ok := m.Settings["libraries"].(map[string]any)
	if !ok {
		return libraries
	}
	for name, address := range raw {
		if s, ok := address.(string); ok {
			libraries[name] = s
		}
	}
	return libraries
}

// IsSolidity returns true if the metadata describes a Solidity compilation. An absent language is treated as Solidity.
func (m *Metadata) IsSolidity() bool {
	return m.Language == "" || strings.EqualFold(m.Language, "solidity")
}

// MarshalMetadataDocument serializes a generic metadata document the way the compiler does: object keys sorted,
// no insignificant whitespace, and no HTML escaping.
func MarshalMetadataDocument(document any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(document); err != nil {
		return nil, errors.WithStack(err)
	}
	return bytes.TrimSuffix(buffer.Bytes(), []byte("\n")), nil
}

// UnmarshalMetadataDocument decodes a raw metadata document into a generic structure suitable for rewriting and
// re-serialization through MarshalMetadataDocument.
func UnmarshalMetadataDocument(raw []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var document map[string]any
	if err := decoder.Decode(&document); err != nil {
		return nil, errors.Wrap(err, "unable to parse contract metadata")
	}
	return document, nil
}
