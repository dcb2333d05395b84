package compilation

import (
	"fmt"

	"github.com/crytic/provenance/compilation/platforms"
	"github.com/crytic/provenance/utils"
	"golang.org/x/exp/slices"
)

// defaultBackendConfigGenerator is a mapping of backend identifier to generator functions which create a default
// configuration for the given backend. Each backend which provides a generator in this mapping is considered a supported
// backend for a CompilationConfig. Items are populated in the init method.
var defaultBackendConfigGenerator map[string]func() platforms.CompilerBackend

// init populates defaultBackendConfigGenerator with the supported compiler backends.
func init() {
	generators := []func() platforms.CompilerBackend{
		func() platforms.CompilerBackend { return platforms.NewSolcBackendConfig() },
		func() platforms.CompilerBackend { return platforms.NewSolcJsBackendConfig() },
	}

	defaultBackendConfigGenerator = make(map[string]func() platforms.CompilerBackend)
	for _, generator := range generators {
		backendId := generator().Backend()

		// Each backend must have a unique identifier.
		if _, exists := defaultBackendConfigGenerator[backendId]; exists {
			panic(fmt.Errorf("the compiler backend '%s' is registered with more than one provider", backendId))
		}
		defaultBackendConfigGenerator[backendId] = generator
	}
}

// GetSupportedCompilerBackends obtains a sorted list of backend identifiers supported by this package.
func GetSupportedCompilerBackends() []string {
	backendIds := make([]string, 0, len(defaultBackendConfigGenerator))
	for k := range defaultBackendConfigGenerator {
		backendIds = append(backendIds, k)
	}
	slices.Sort(backendIds)
	return backendIds
}

// IsSupportedCompilerBackend returns a boolean status indicating if a backend identifier is supported.
func IsSupportedCompilerBackend(backend string) bool {
	_, ok := defaultBackendConfigGenerator[backend]
	return ok
}

// GetDefaultBackendConfig obtains a CompilerBackend from the default generator for the provided backend.
func GetDefaultBackendConfig(backend string) platforms.CompilerBackend {
	return defaultBackendConfigGenerator[backend]()
}

// DefaultCompilerBackend returns the backend used when none is configured. Native binaries are only published for a
// handful of platforms, so the interpreter is used elsewhere.
func DefaultCompilerBackend() string {
	if utils.IsLinuxEnvironment() || utils.IsMacOSEnvironment() {
		return "solc"
	}
	return "solcjs"
}
