package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestInfoStrings verifies the short and long renderings of build information.
func TestInfoStrings(t *testing.T) {
	info := Info{
		Version:       "0.1.0",
		GitCommit:     "0123456789abcdef",
		GitCommitTime: "2024-03-01T10:20:30Z",
		GitTreeDirty:  true,
		GoVersion:     "go1.23.3",
		Platform:      "linux/amd64",
	}
	assert.Equal(t, "0.1.0+0123456-dirty", info.Short())
	assert.Equal(t, "2024-03-01 10:20:30 UTC", info.FormattedTime())

	long := info.String()
	assert.True(t, strings.HasPrefix(long, "provenance version 0.1.0\n"))
	assert.Contains(t, long, "Commit:     0123456-dirty")
	assert.Contains(t, long, "Platform:   linux/amd64")

	assert.Equal(t, "0.1.0", Info{Version: "0.1.0", GitTreeDirty: true}.Short())
	assert.Equal(t, "unknown", Info{}.FormattedTime())
}
