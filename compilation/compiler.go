package compilation

import (
	"context"
	"encoding/json"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/provenance/compilation/hashing"
	"github.com/crytic/provenance/compilation/platforms"
	"github.com/crytic/provenance/compilation/types"
	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// ArtifactProvider provides local paths to compiler artifacts.
type ArtifactProvider interface {
	// Acquire returns the path of a compiler artifact of the given kind for the provided version.
	Acquire(ctx context.Context, version string, kind platforms.ArtifactKind) (string, error)
}

// CompileResult is the outcome of a compilation which ran to completion. Exactly one of Output or Errors is set: Errors
// holds the formatted messages of every error-severity diagnostic the compiler reported.
type CompileResult struct {
	Output *types.CompilerOutput
	Errors []string
}

// Succeeded returns true if the compiler produced output without error diagnostics.
func (r *CompileResult) Succeeded() bool {
	return r != nil && r.Output != nil && len(r.Errors) == 0
}

// Compiler is the compiler oracle used during verification. It resolves a compiler artifact for a version, runs it
// through a backend, and memoizes raw outputs by version and input.
type Compiler struct {
	backend   platforms.CompilerBackend
	artifacts ArtifactProvider
	results   *lru.Cache[common.Hash, []byte]
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewCompiler creates a Compiler. A resultCacheSize of zero or less disables output memoization.
func NewCompiler(backend platforms.CompilerBackend, artifacts ArtifactProvider, resultCacheSize int, m *metrics.Metrics) (*Compiler, error) {
	if backend == nil || artifacts == nil {
		return nil, errors.New("a compiler requires both a backend and an artifact provider")
	}

	c := &Compiler{
		backend:   backend,
		artifacts: artifacts,
		metrics:   m,
		logger:    logging.GlobalLogger.NewSubLogger("module", logging.COMPILATION_SERVICE),
	}
	if resultCacheSize > 0 {
		results, err := lru.New[common.Hash, []byte](resultCacheSize)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		c.results = results
	}
	return c, nil
}

// Backend returns the backend the compiler runs.
func (c *Compiler) Backend() platforms.CompilerBackend {
	return c.backend
}

// Compile compiles the standard JSON input with the given compiler version. An error is returned if the compiler could
// not be obtained or run, or if its output could not be parsed. Compiler diagnostics of error severity are returned in
// CompileResult.Errors instead.
func (c *Compiler) Compile(ctx context.Context, version string, input *types.CompilerInput) (*CompileResult, error) {
	version = NormalizeVersion(version)

	inputJson, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	key := hashing.Keccak256(append([]byte(c.backend.Backend()+"\x00"+version+"\x00"), inputJson...))
	raw, cached := c.cachedOutput(key)
	if !cached {
		compilerPath, err := c.artifacts.Acquire(ctx, version, c.backend.ArtifactKind())
		if err != nil {
			c.metrics.RecordCompilation(c.backend.Backend(), "unavailable")
			return nil, err
		}

		c.logger.Debug("Compiling with ", c.backend.Backend(), " v", version)
		raw, err = c.backend.Compile(ctx, compilerPath, inputJson)
		if err != nil {
			c.metrics.RecordCompilation(c.backend.Backend(), "failed")
			return nil, err
		}
	}

	var output types.CompilerOutput
	if err = json.Unmarshal(raw, &output); err != nil {
		c.metrics.RecordCompilation(c.backend.Backend(), "failed")
		return nil, errors.Wrap(err, "could not parse compiler output")
	}
	if !cached && c.results != nil {
		c.results.Add(key, raw)
	}

	if messages := output.ErrorMessages(); len(messages) > 0 {
		c.metrics.RecordCompilation(c.backend.Backend(), "errors")
		return &CompileResult{Errors: messages}, nil
	}
	c.metrics.RecordCompilation(c.backend.Backend(), "success")
	return &CompileResult{Output: &output}, nil
}

// cachedOutput returns a memoized raw output, if one exists.
func (c *Compiler) cachedOutput(key common.Hash) ([]byte, bool) {
	if c.results == nil {
		return nil, false
	}
	return c.results.Get(key)
}
