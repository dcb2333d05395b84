package verification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/crytic/provenance/cache"
	"github.com/crytic/provenance/compilation/hashing"
	"github.com/crytic/provenance/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGatewayServer serves the provided files by CID, counting requests.
func newGatewayServer(t *testing.T, files map[string]string, requests *atomic.Int32) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		content, ok := files[strings.TrimPrefix(r.URL.Path, "/ipfs/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(content))
	}))
	t.Cleanup(server.Close)
	return server
}

// missingSourceFor describes a missing source for the content, served under its CID.
func missingSourceFor(t *testing.T, content string) (MissingSource, string) {
	cid, err := hashing.IpfsHash([]byte(content))
	require.NoError(t, err)
	return MissingSource{
		Keccak256: hashing.Keccak256Hex([]byte(content)),
		URLs:      []string{"bzz-raw://00", ipfsURLPrefix + cid},
	}, cid
}

// TestResolveMissing verifies missing sources are fetched through the gateway and cached by hash.
func TestResolveMissing(t *testing.T) {
	first, firstCid := missingSourceFor(t, "contract A {}")
	second, secondCid := missingSourceFor(t, "contract B {}")

	var requests atomic.Int32
	server := newGatewayServer(t, map[string]string{firstCid: "contract A {}", secondCid: "contract B {}"}, &requests)

	c := cache.NewNonPersistentCache()
	m := metrics.New()
	resolver := NewSourceResolver(server.URL+"/ipfs/", 0, 0, c, m)

	missing := map[string]MissingSource{"a.sol": first, "b.sol": second}
	resolved, stillMissing := resolver.ResolveMissing(context.Background(), missing)
	assert.Empty(t, stillMissing)
	assert.Equal(t, map[string]string{"a.sol": "contract A {}", "b.sol": "contract B {}"}, resolved)
	assert.EqualValues(t, 2, requests.Load())

	cached, err := c.Get(cache.BUCKET_SOURCES, []byte(first.Keccak256))
	require.NoError(t, err)
	assert.Equal(t, "contract A {}", string(cached))

	// A second resolution is served from the cache
	resolved, stillMissing = resolver.ResolveMissing(context.Background(), missing)
	assert.Empty(t, stillMissing)
	assert.Len(t, resolved, 2)
	assert.EqualValues(t, 2, requests.Load())

	count, err := testutil.GatherAndCount(m.Gatherer(), "source_fetches_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestResolveMissingStopsAtFirstFailure verifies resolution stops at the first file that cannot be fetched, reporting
// it and every file after it as still missing.
func TestResolveMissingStopsAtFirstFailure(t *testing.T) {
	first, firstCid := missingSourceFor(t, "contract A {}")
	second, _ := missingSourceFor(t, "contract B {}")
	third, thirdCid := missingSourceFor(t, "contract C {}")

	var requests atomic.Int32
	server := newGatewayServer(t, map[string]string{firstCid: "contract A {}", thirdCid: "contract C {}"}, &requests)
	resolver := NewSourceResolver(server.URL+"/ipfs/", 0, 0, nil, nil)

	resolved, stillMissing := resolver.ResolveMissing(context.Background(), map[string]MissingSource{
		"a.sol": first,
		"b.sol": second,
		"c.sol": third,
	})
	assert.Equal(t, map[string]string{"a.sol": "contract A {}"}, resolved)
	assert.Equal(t, []string{"b.sol", "c.sol"}, stillMissing)
	assert.EqualValues(t, 2, requests.Load())
}

// TestFetchRejectsHashMismatch verifies fetched content is only accepted when it matches the expected hash.
func TestFetchRejectsHashMismatch(t *testing.T) {
	source, cid := missingSourceFor(t, "contract A {}")

	var requests atomic.Int32
	server := newGatewayServer(t, map[string]string{cid: "contract A { }"}, &requests)
	c := cache.NewNonPersistentCache()
	resolver := NewSourceResolver(server.URL+"/ipfs/", 0, 0, c, nil)

	_, ok := resolver.Fetch(context.Background(), server.URL+"/ipfs/"+cid, source.Keccak256, "ipfs")
	assert.False(t, ok)
	_, err := c.Get(cache.BUCKET_SOURCES, []byte(source.Keccak256))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	content, ok := resolver.Fetch(context.Background(), server.URL+"/ipfs/"+cid, "", "ipfs")
	assert.True(t, ok)
	assert.Equal(t, "contract A { }", content)
}

// TestGetGithubUrl verifies GitHub file URLs are rewritten to their raw content form.
func TestGetGithubUrl(t *testing.T) {
	url, ok := GetGithubUrl("https://github.com/ethereum/sourcify/blob/master/contracts/Token.sol")
	assert.True(t, ok)
	assert.Equal(t, "https://raw.githubusercontent.com/ethereum/sourcify/master/contracts/Token.sol", url)

	_, ok = GetGithubUrl("contracts/Token.sol")
	assert.False(t, ok)
}
