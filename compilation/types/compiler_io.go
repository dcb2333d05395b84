package types

import (
	"strings"

	"golang.org/x/exp/slices"
)

// CompilerInput describes a standard JSON compiler input document.
// Reference: https://docs.soliditylang.org/en/latest/using-the-compiler.html#input-description
type CompilerInput struct {
	Language string                         `json:"language"`
	Sources  map[string]CompilerInputSource `json:"sources"`
	Settings map[string]any                 `json:"settings"`
}

// CompilerInputSource describes a single source within a CompilerInput.
type CompilerInputSource struct {
	Content string `json:"content"`
}

// CompilerOutput describes the subset of a standard JSON compiler output document needed for verification.
type CompilerOutput struct {
	Errors    []CompilerOutputError                        `json:"errors,omitempty"`
	Contracts map[string]map[string]CompilerOutputContract `json:"contracts,omitempty"`
}

// CompilerOutputError describes a diagnostic emitted by the compiler.
type CompilerOutputError struct {
	Severity         string `json:"severity"`
	Type             string `json:"type,omitempty"`
	Message          string `json:"message,omitempty"`
	FormattedMessage string `json:"formattedMessage,omitempty"`
}

// CompilerOutputContract describes the output produced for a single contract.
type CompilerOutputContract struct {
	Metadata string             `json:"metadata"`
	Evm      *CompilerOutputEvm `json:"evm,omitempty"`
}

// CompilerOutputEvm describes the EVM-related output produced for a single contract.
type CompilerOutputEvm struct {
	Bytecode         *CompilerOutputBytecode `json:"bytecode,omitempty"`
	DeployedBytecode *CompilerOutputBytecode `json:"deployedBytecode,omitempty"`
}

// CompilerOutputBytecode describes creation or deployed bytecode within a CompilerOutput.
type CompilerOutputBytecode struct {
	// Object is the hex-encoded bytecode (without a 0x prefix), which may contain library placeholders.
	Object string `json:"object"`

	// ImmutableReferences maps AST ids of immutable variables to the bytecode ranges that hold them. Only populated
	// for deployed bytecode.
	ImmutableReferences ImmutableReferences `json:"immutableReferences,omitempty"`
}

// ImmutableReferences maps an immutable variable's AST id to the ranges where its value is placed in bytecode.
type ImmutableReferences map[string][]ImmutableReference

// ImmutableReference describes a single byte range an immutable value is written to.
type ImmutableReference struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// ErrorMessages returns the formatted messages of every diagnostic with "error" severity.
func (o *CompilerOutput) ErrorMessages() []string {
	messages := make([]string, 0)
	for _, e := range o.Errors {
		if e.Severity != "error" {
			continue
		}
		if e.FormattedMessage != "" {
			messages = append(messages, e.FormattedMessage)
		} else {
			messages = append(messages, e.Message)
		}
	}
	return messages
}

// FindContractPathFromContractName returns the source path of the first contract with the provided name, or an empty
// string if none exists. Paths are searched in sorted order so the result is stable.
func (o *CompilerOutput) FindContractPathFromContractName(contractName string) string {
	paths := make([]string, 0, len(o.Contracts))
	for path := range o.Contracts {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	for _, path := range paths {
		if _, ok := o.Contracts[path][contractName]; ok {
			return path
		}
	}
	return ""
}

// RecompilationResult describes the bytecode and metadata produced by recompiling a contract.
type RecompilationResult struct {
	// CreationBytecode is the 0x-prefixed creation (init) bytecode.
	CreationBytecode string `json:"creationBytecode"`

	// DeployedBytecode is the 0x-prefixed runtime bytecode.
	DeployedBytecode string `json:"deployedBytecode"`

	// Metadata is the metadata document the compiler emitted, trimmed of surrounding whitespace.
	Metadata string `json:"metadata"`

	// ImmutableReferences is nil when the compiler reported no immutable references.
	ImmutableReferences ImmutableReferences `json:"immutableReferences,omitempty"`
}

// NewRecompilationResult builds a RecompilationResult from a compiled contract. Returns false if the contract output
// lacks the evm bytecode section.
func NewRecompilationResult(contract CompilerOutputContract) (*RecompilationResult, bool) {
	if contract.Evm == nil || contract.Evm.Bytecode == nil {
		return nil, false
	}

	result := &RecompilationResult{
		CreationBytecode: "0x" + contract.Evm.Bytecode.Object,
		Metadata:         strings.TrimSpace(contract.Metadata),
	}
	if contract.Evm.DeployedBytecode != nil {
		result.DeployedBytecode = "0x" + contract.Evm.DeployedBytecode.Object
		if len(contract.Evm.DeployedBytecode.ImmutableReferences) > 0 {
			result.ImmutableReferences = contract.Evm.DeployedBytecode.ImmutableReferences
		}
	} else {
		result.DeployedBytecode = "0x"
	}
	return result, true
}
