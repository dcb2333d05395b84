package platforms

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

// SolcJsBackendConfig describes the configuration of a backend which interprets emscripten soljson builds inside an
// embedded JavaScript runtime. Only asm.js builds can be interpreted; WebAssembly builds are rejected at load time.
type SolcJsBackendConfig struct {
	// InterruptAfterSeconds bounds how long a single compilation may run inside the interpreter. Zero disables it.
	InterruptAfterSeconds int `json:"interruptAfterSeconds"`

	// runtimes caches loaded interpreters keyed by soljson path. Loading a soljson build takes several seconds.
	runtimes map[string]*soljsonRuntime
	lock     sync.Mutex
}

// soljsonRuntime wraps an interpreter with soljson loaded. goja runtimes are not goroutine safe, so every call must hold
// the lock.
type soljsonRuntime struct {
	vm      *goja.Runtime
	compile goja.Callable
	lock    sync.Mutex
}

// NewSolcJsBackendConfig returns a SolcJsBackendConfig with default values.
func NewSolcJsBackendConfig() *SolcJsBackendConfig {
	return &SolcJsBackendConfig{
		InterruptAfterSeconds: 300,
	}
}

// Backend returns the identifier of the embedded interpreter backend.
func (s *SolcJsBackendConfig) Backend() string {
	return "solcjs"
}

// ArtifactKind returns ArtifactSoljson, as this backend interprets soljson scripts.
func (s *SolcJsBackendConfig) ArtifactKind() ArtifactKind {
	return ArtifactSoljson
}

// Compile loads (or reuses) the soljson script at compilerPath and invokes its standard JSON entrypoint.
func (s *SolcJsBackendConfig) Compile(ctx context.Context, compilerPath string, input []byte) ([]byte, error) {
	runtime, err := s.loadRuntime(compilerPath)
	if err != nil {
		return nil, err
	}

	runtime.lock.Lock()
	defer runtime.lock.Unlock()

	// Interrupt the interpreter if the context expires or the compilation runs too long.
	done := make(chan struct{})
	defer close(done)
	var timeout <-chan time.Time
	if s.InterruptAfterSeconds > 0 {
		timer := time.NewTimer(time.Duration(s.InterruptAfterSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}
	go func() {
		select {
		case <-ctx.Done():
			runtime.vm.Interrupt(ctx.Err())
		case <-timeout:
			runtime.vm.Interrupt("soljson compilation timed out")
		case <-done:
		}
	}()

	result, err := runtime.compile(goja.Undefined(), runtime.vm.ToValue(string(input)), runtime.vm.ToValue(0), runtime.vm.ToValue(0))
	runtime.vm.ClearInterrupt()
	if err != nil {
		return nil, errors.Wrap(err, "soljson compilation failed")
	}

	output := result.String()
	if output == "" {
		return nil, errors.New("compilation failed. No output from the compiler")
	}
	return []byte(output), nil
}

// loadRuntime returns the interpreter for the provided soljson path, evaluating the script on first use.
func (s *SolcJsBackendConfig) loadRuntime(compilerPath string) (*soljsonRuntime, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.runtimes == nil {
		s.runtimes = make(map[string]*soljsonRuntime)
	}
	if runtime, ok := s.runtimes[compilerPath]; ok {
		return runtime, nil
	}

	script, err := os.ReadFile(compilerPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	runtime, err := newSoljsonRuntime(compilerPath, string(script))
	if err != nil {
		return nil, err
	}
	s.runtimes[compilerPath] = runtime
	return runtime, nil
}

// soljsonEntrypointScript resolves the standard JSON entrypoint exported by the loaded soljson build. Builds before
// 0.5.0 only export compileStandard, which takes a single callback argument.
const soljsonEntrypointScript = `(function () {
	if (typeof Module === "undefined" || typeof Module.cwrap !== "function") {
		throw new Error("soljson did not initialise an emscripten module");
	}
	if (typeof Module._solidity_compile === "function") {
		return Module.cwrap("solidity_compile", "string", ["string", "number", "number"]);
	}
	if (typeof Module._compileStandard === "function") {
		return Module.cwrap("compileStandard", "string", ["string", "number"]);
	}
	throw new Error("soljson exports no standard JSON entrypoint");
})()`

// newSoljsonRuntime evaluates a soljson script in a fresh interpreter configured as an emscripten shell environment.
func newSoljsonRuntime(name string, script string) (*soljsonRuntime, error) {
	vm := goja.New()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, global := range []string{"print", "printErr"} {
		if err := vm.Set(global, noop); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	if _, err := vm.RunString("var Module = typeof Module !== 'undefined' ? Module : {};"); err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := vm.RunScript(name, script); err != nil {
		return nil, errors.Wrapf(err, "unable to load soljson from %s (only asm.js builds are supported)", name)
	}

	entrypoint, err := vm.RunString(soljsonEntrypointScript)
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve soljson entrypoint")
	}
	compile, ok := goja.AssertFunction(entrypoint)
	if !ok {
		return nil, errors.New("soljson entrypoint is not callable")
	}
	return &soljsonRuntime{vm: vm, compile: compile}, nil
}
