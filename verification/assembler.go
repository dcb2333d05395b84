package verification

import (
	"github.com/crytic/provenance/compilation"
	"github.com/crytic/provenance/compilation/types"
)

// inlinerBugVersions is the range of compiler versions whose optimizer inliner is known to miscompile.
const inlinerBugVersions = ">= 0.8.2, <= 0.8.4"

// outputSelection is the output requested from the compiler for the compilation target.
var outputSelection = []any{
	"evm.bytecode.object",
	"evm.deployedBytecode.object",
	"evm.deployedBytecode.immutableReferences",
	"metadata",
}

// AssembledInput is a compiler input built from a metadata document, along with the compilation target it selects.
type AssembledInput struct {
	Input        *types.CompilerInput
	ContractPath string
	ContractName string
}

// Assemble builds the standard JSON compiler input for a metadata document and a set of source texts. The metadata's
// settings are deep copied, so the returned input never aliases the metadata document.
func Assemble(metadata *types.Metadata, sources map[string]string) (*AssembledInput, error) {
	contractPath, contractName, count := metadata.CompilationTarget()
	if count != 1 {
		return nil, newInputError("Invalid compilationTarget: expected exactly one entry, found %d", count)
	}

	settings, ok := deepCopyDocument(metadata.Settings).(map[string]any)
	if !ok || settings == nil {
		settings = make(map[string]any)
	}
	delete(settings, "compilationTarget")

	if compilation.VersionInRange(metadata.Compiler.Version, inlinerBugVersions) {
		if optimizer, ok := settings["optimizer"].(map[string]any); ok {
			if details, ok := optimizer["details"].(map[string]any); ok {
				delete(details, "inliner")
			}
		}
	}

	selection, ok := settings["outputSelection"].(map[string]any)
	if !ok {
		selection = make(map[string]any)
	}
	allFiles, ok := selection["*"].(map[string]any)
	if !ok {
		allFiles = make(map[string]any)
	}
	allFiles[contractName] = append([]any(nil), outputSelection...)
	selection["*"] = allFiles
	settings["outputSelection"] = selection

	if _, ok := settings["metadata"].(map[string]any); !ok {
		settings["metadata"] = make(map[string]any)
	}

	libraries, ok := settings["libraries"].(map[string]any)
	if !ok {
		libraries = make(map[string]any)
	}
	settings["libraries"] = map[string]any{"": libraries}

	inputSources := make(map[string]types.CompilerInputSource, len(sources))
	for path, content := range sources {
		inputSources[path] = types.CompilerInputSource{Content: content}
	}

	return &AssembledInput{
		Input: &types.CompilerInput{
			Language: metadata.Language,
			Sources:  inputSources,
			Settings: settings,
		},
		ContractPath: contractPath,
		ContractName: contractName,
	}, nil
}

// deepCopyDocument copies a generic JSON document so that no maps or slices are shared with the original.
func deepCopyDocument(document any) any {
	switch value := document.(type) {
	case map[string]any:
		copied := make(map[string]any, len(value))
		for k, v := range value {
			copied[k] = deepCopyDocument(v)
		}
		return copied
	case []any:
		copied := make([]any, len(value))
		for i, v := range value {
			copied[i] = deepCopyDocument(v)
		}
		return copied
	default:
		return value
	}
}
