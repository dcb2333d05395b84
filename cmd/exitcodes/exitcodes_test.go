package exitcodes

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestGetInnerErrorAndExitCode verifies exit codes are recovered from wrapped errors.
func TestGetInnerErrorAndExitCode(t *testing.T) {
	err, code := GetInnerErrorAndExitCode(nil)
	assert.NoError(t, err)
	assert.Equal(t, ExitCodeSuccess, code)

	generic := errors.New("generic")
	err, code = GetInnerErrorAndExitCode(generic)
	assert.Equal(t, generic, err)
	assert.Equal(t, ExitCodeGeneralError, code)

	inner := errors.New("bytecode mismatch")
	err, code = GetInnerErrorAndExitCode(errors.WithMessage(NewErrorWithExitCode(inner, ExitCodeVerificationFailed), "verify"))
	assert.Equal(t, inner, err)
	assert.Equal(t, ExitCodeVerificationFailed, code)
}
