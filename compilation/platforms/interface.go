package platforms

import "context"

// ArtifactKind describes the kind of compiler artifact a CompilerBackend executes.
type ArtifactKind int

const (
	// ArtifactNative describes a native solc executable.
	ArtifactNative ArtifactKind = iota
	// ArtifactSoljson describes an emscripten-built soljson script.
	ArtifactSoljson
)

// String returns a human-readable name for the artifact kind.
func (k ArtifactKind) String() string {
	switch k {
	case ArtifactNative:
		return "native"
	case ArtifactSoljson:
		return "soljson"
	default:
		return "unknown"
	}
}

// CompilerBackend describes the interface all compiler backends must implement. A backend runs a compiler artifact
// (obtained from a compiler cache) over a standard JSON input document and returns the raw standard JSON output.
type CompilerBackend interface {
	// Backend returns the unique identifier of the backend.
	Backend() string

	// ArtifactKind returns the kind of compiler artifact the backend executes.
	ArtifactKind() ArtifactKind

	// Compile runs the compiler artifact at compilerPath over the provided standard JSON input.
	Compile(ctx context.Context, compilerPath string, input []byte) ([]byte, error)
}
