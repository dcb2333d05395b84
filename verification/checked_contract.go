package verification

import (
	"context"
	"strings"

	"github.com/crytic/provenance/compilation"
	"github.com/crytic/provenance/compilation/hashing"
	"github.com/crytic/provenance/compilation/types"
	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// sessionNamespace is the namespace session keys are derived in.
var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/crytic/provenance/checked-contract"))

// CompilerOracle compiles standard JSON compiler input with a given compiler version.
type CompilerOracle interface {
	Compile(ctx context.Context, version string, input *types.CompilerInput) (*compilation.CompileResult, error)
}

// CheckedContract is a contract described by a metadata document together with the source texts gathered for it.
// A CheckedContract is a snapshot: operations that change its metadata or sources return a new CheckedContract.
type CheckedContract struct {
	// Metadata is the parsed metadata document.
	Metadata *types.Metadata

	// MetadataRaw is the metadata document exactly as provided.
	MetadataRaw []byte

	// Sources maps source paths to their texts.
	Sources map[string]string

	// Missing describes sources referenced by the metadata which were not provided.
	Missing map[string]MissingSource

	// Invalid maps paths of malformed sources to the reason they were rejected.
	Invalid map[string]string

	// CompilerInput is the standard JSON input derived from Metadata and Sources.
	CompilerInput *types.CompilerInput

	// CompiledPath is the source path of the compilation target.
	CompiledPath string

	// Name is the contract name of the compilation target.
	Name string

	// CompilerVersion is the compiler version recorded in the metadata.
	CompilerVersion string
}

// NewCheckedContract creates a CheckedContract from a raw metadata document and source texts. An InputError is returned
// if the metadata is malformed, lacks a compiler version, or does not name exactly one compilation target.
func NewCheckedContract(metadataRaw []byte, sources map[string]string, missing map[string]MissingSource, invalid map[string]string) (*CheckedContract, error) {
	metadata, err := types.ParseMetadata(metadataRaw)
	if err != nil {
		return nil, &InputError{Message: err.Error()}
	}
	if metadata.Compiler.Version == "" {
		return nil, newInputError("No compiler version found in metadata")
	}

	assembled, err := Assemble(metadata, sources)
	if err != nil {
		return nil, err
	}

	if missing == nil {
		missing = make(map[string]MissingSource)
	}
	if invalid == nil {
		invalid = make(map[string]string)
	}
	return &CheckedContract{
		Metadata:        metadata,
		MetadataRaw:     metadataRaw,
		Sources:         sources,
		Missing:         missing,
		Invalid:         invalid,
		CompilerInput:   assembled.Input,
		CompiledPath:    assembled.ContractPath,
		Name:            assembled.ContractName,
		CompilerVersion: metadata.Compiler.Version,
	}, nil
}

// NewCheckedContractFromFiles matches provided files against the sources listed in a metadata document by keccak256
// hash, tolerating line ending and trailing whitespace differences. Sources embedded in the metadata are used directly.
// Listed sources with no matching file are recorded as missing.
func NewCheckedContractFromFiles(metadataRaw []byte, files map[string]string) (*CheckedContract, error) {
	metadata, err := types.ParseMetadata(metadataRaw)
	if err != nil {
		return nil, &InputError{Message: err.Error()}
	}

	byHash := make(map[string]string)
	for _, variation := range GenerateVariations(files) {
		for _, content := range variation.Sources {
			hash := hashing.Keccak256Hex([]byte(content))
			if _, exists := byHash[hash]; !exists {
				byHash[hash] = content
			}
		}
	}

	sources := make(map[string]string)
	missing := make(map[string]MissingSource)
	invalid := make(map[string]string)
	for path, source := range metadata.Sources {
		expectedHash := strings.ToLower(source.Keccak256)
		if source.Content != nil {
			if hashing.Keccak256Hex([]byte(*source.Content)) != expectedHash {
				invalid[path] = "embedded content does not match its keccak256 hash"
				continue
			}
			sources[path] = *source.Content
		} else if content, ok := byHash[expectedHash]; ok {
			sources[path] = content
		} else {
			missing[path] = MissingSource{Keccak256: source.Keccak256, URLs: source.URLs}
		}
	}
	return NewCheckedContract(metadataRaw, sources, missing, invalid)
}

// IsValid returns true if no sources are invalid and, unless ignoreMissing is set, none are missing.
func (c *CheckedContract) IsValid(ignoreMissing bool) bool {
	return (len(c.Missing) == 0 || ignoreMissing) && len(c.Invalid) == 0
}

// SessionKey returns a stable identifier derived from the raw metadata document.
func (c *CheckedContract) SessionKey() string {
	return uuid.NewSHA1(sessionNamespace, c.MetadataRaw).String()
}

// Rebase returns a new CheckedContract for a different metadata document and source set, keeping the missing and
// invalid sources of this one.
func (c *CheckedContract) Rebase(metadataRaw []byte, sources map[string]string) (*CheckedContract, error) {
	return NewCheckedContract(metadataRaw, sources, maps.Clone(c.Missing), maps.Clone(c.Invalid))
}

// withResolvedSources returns a new CheckedContract with the provided sources added and removed from the missing set.
func (c *CheckedContract) withResolvedSources(resolved map[string]string) (*CheckedContract, error) {
	sources := maps.Clone(c.Sources)
	if sources == nil {
		sources = make(map[string]string)
	}
	missing := maps.Clone(c.Missing)
	for path, content := range resolved {
		sources[path] = content
		delete(missing, path)
	}
	return NewCheckedContract(c.MetadataRaw, sources, missing, maps.Clone(c.Invalid))
}

// FetchMissing resolves the contract's missing sources. The returned contract holds every source fetched; a
// ResourceMissingError naming the files still missing is returned alongside it if resolution stopped early.
func (c *CheckedContract) FetchMissing(ctx context.Context, resolver *SourceResolver) (*CheckedContract, error) {
	resolved, stillMissing := resolver.ResolveMissing(ctx, c.Missing)
	updated, err := c.withResolvedSources(resolved)
	if err != nil {
		return nil, err
	}
	if len(stillMissing) > 0 {
		return updated, &ResourceMissingError{Files: stillMissing}
	}
	return updated, nil
}

// Recompile compiles the contract, first fetching any missing sources. The returned contract reflects any sources that
// were fetched.
func (c *CheckedContract) Recompile(ctx context.Context, oracle CompilerOracle, resolver *SourceResolver) (*CheckedContract, *types.RecompilationResult, error) {
	contract := c
	if !contract.IsValid(false) {
		if len(contract.Invalid) > 0 {
			return nil, nil, newInputError("Invalid sources: %s", StringifyInvalidAndMissing(contract))
		}
		if resolver == nil {
			return nil, nil, &ResourceMissingError{Files: sortedKeys(contract.Missing)}
		}
		var err error
		if contract, err = contract.FetchMissing(ctx, resolver); err != nil {
			return nil, nil, err
		}
	}

	result, err := oracle.Compile(ctx, contract.CompilerVersion, contract.CompilerInput)
	if err != nil {
		return nil, nil, &CompilerError{Err: err}
	}
	if !result.Succeeded() {
		return nil, nil, &CompilerError{Messages: result.Errors}
	}

	compiled, ok := result.Output.Contracts[contract.CompiledPath][contract.Name]
	if !ok {
		return nil, nil, &CompilerError{Messages: result.Output.ErrorMessages()}
	}
	recompiled, ok := types.NewRecompilationResult(compiled)
	if !ok {
		return nil, nil, &CompilerError{Messages: result.Output.ErrorMessages()}
	}
	return contract, recompiled, nil
}

// StringifyInvalidAndMissing describes the contract and the paths of its invalid and missing sources, e.g.
// "Token (contracts/A.sol, contracts/B.sol)".
func StringifyInvalidAndMissing(c *CheckedContract) string {
	paths := append(sortedKeys(c.Invalid), sortedKeys(c.Missing)...)
	return c.Name + " (" + strings.Join(paths, ", ") + ")"
}

// sortedKeys returns the keys of a map in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
