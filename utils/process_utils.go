package utils

import (
	"bytes"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// ErrOutputLimitExceeded is returned when a command writes more to stdout than the configured limit.
var ErrOutputLimitExceeded = errors.New("command output exceeded the configured limit")

// RunCommandWithOutputAndError runs a given exec.Cmd and returns the stdout, stderr, and
// combined output as bytes, or an error if one occurred.
func RunCommandWithOutputAndError(command *exec.Cmd) ([]byte, []byte, []byte, error) {
	return RunCommandWithInput(command, nil, 0)
}

// RunCommandWithInput runs a given exec.Cmd, feeding it the provided stdin bytes (if non-nil), and returns the stdout,
// stderr, and combined output. If maxOutput is positive and stdout grows beyond it, ErrOutputLimitExceeded is returned
// alongside whatever output was captured.
func RunCommandWithInput(command *exec.Cmd, stdin []byte, maxOutput int) ([]byte, []byte, []byte, error) {
	var bStdout, bStderr, bCombined bytes.Buffer

	// Create a synchronized writer over bCombined to avoid data race.
	var combinedWriter io.Writer = &synchronizedWriter{writer: &bCombined}

	var stdoutWriter io.Writer = &bStdout
	limited := &limitedWriter{writer: stdoutWriter, remaining: maxOutput}
	if maxOutput > 0 {
		stdoutWriter = limited
	}

	command.Stdout = io.MultiWriter(stdoutWriter, combinedWriter)
	command.Stderr = io.MultiWriter(&bStderr, combinedWriter)
	if stdin != nil {
		command.Stdin = bytes.NewReader(stdin)
	}

	err := command.Run()
	if limited.exceeded {
		return bStdout.Bytes(), bStderr.Bytes(), bCombined.Bytes(), ErrOutputLimitExceeded
	}
	return bStdout.Bytes(), bStderr.Bytes(), bCombined.Bytes(), err
}

// IsWindowsEnvironment returns a boolean indicating whether the current execution environment is a Windows platform.
func IsWindowsEnvironment() bool {
	return runtime.GOOS == "windows"
}

// IsMacOSEnvironment returns a boolean indicating whether the current execution environment is a macOS platform.
func IsMacOSEnvironment() bool {
	return runtime.GOOS == "darwin"
}

// IsLinuxEnvironment returns a boolean indicating whether the current execution environment is a Linux platform.
func IsLinuxEnvironment() bool {
	return runtime.GOOS == "linux"
}

// synchronizedWriter wraps an io.Writer to avoid a data race when writing.
type synchronizedWriter struct {
	writer io.Writer
	mutex  sync.Mutex
}

func (s *synchronizedWriter) Write(p []byte) (n int, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writer.Write(p)
}

// limitedWriter forwards writes until remaining is exhausted, then silently drains the rest so the child process never
// blocks on a full pipe.
type limitedWriter struct {
	writer    io.Writer
	remaining int
	exceeded  bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.exceeded || len(p) > l.remaining {
		l.exceeded = true
		return len(p), nil
	}
	l.remaining -= len(p)
	return l.writer.Write(p)
}
