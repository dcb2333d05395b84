package platforms

import (
	"context"
	"os/exec"
	"regexp"

	"github.com/Masterminds/semver"
	"github.com/crytic/provenance/utils"
	"github.com/pkg/errors"
)

// defaultSolcMaxOutputBytes bounds how much standard JSON output is read from a solc process.
const defaultSolcMaxOutputBytes = 10 * 1000 * 1000

// solcVersionRegexp extracts the semantic version from `solc --version` output.
var solcVersionRegexp = regexp.MustCompile(`\d+\.\d+\.\d+(-[0-9A-Za-z.]+)?`)

// SolcBackendConfig describes the configuration of a backend which spawns native solc processes.
type SolcBackendConfig struct {
	// MaxOutputBytes is the maximum size of standard JSON output accepted from the compiler.
	MaxOutputBytes int `json:"maxOutputBytes"`
}

// NewSolcBackendConfig returns a SolcBackendConfig with default values.
func NewSolcBackendConfig() *SolcBackendConfig {
	return &SolcBackendConfig{
		MaxOutputBytes: defaultSolcMaxOutputBytes,
	}
}

// Backend returns the identifier of the solc process backend.
func (s *SolcBackendConfig) Backend() string {
	return "solc"
}

// ArtifactKind returns ArtifactNative, as this backend executes solc binaries.
func (s *SolcBackendConfig) ArtifactKind() ArtifactKind {
	return ArtifactNative
}

// Compile spawns `solc --standard-json` with the input on stdin and returns its stdout.
func (s *SolcBackendConfig) Compile(ctx context.Context, compilerPath string, input []byte) ([]byte, error) {
	maxOutput := s.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = defaultSolcMaxOutputBytes
	}

	cmd := exec.CommandContext(ctx, compilerPath, "--standard-json")
	stdout, _, combined, err := utils.RunCommandWithInput(cmd, input, maxOutput)
	if errors.Is(err, utils.ErrOutputLimitExceeded) {
		return nil, errors.New("compilation output size too large")
	}
	if err != nil {
		return nil, errors.Errorf("error while executing solc:\n%s\n\nCommand Output:\n%s\n", err.Error(), string(combined))
	}
	if len(stdout) == 0 {
		return nil, errors.New("recompilation error (probably caused by invalid metadata)")
	}
	return stdout, nil
}

// GetSolcVersion runs `solc --version` for the executable at the provided path and parses its version. An error is
// returned if the executable does not run successfully on this platform.
func GetSolcVersion(ctx context.Context, compilerPath string) (*semver.Version, error) {
	out, err := exec.CommandContext(ctx, compilerPath, "--version").CombinedOutput()
	if err != nil {
		return nil, errors.Errorf("error while executing solc:\nOUTPUT:\n%s\nERROR: %s\n", string(out), err.Error())
	}

	versionStr := solcVersionRegexp.FindString(string(out))
	if versionStr == "" {
		return nil, errors.Errorf("could not parse solc version using '%s --version'", compilerPath)
	}
	return semver.NewVersion(versionStr)
}
