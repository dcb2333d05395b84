package verification

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crytic/provenance/cache"
	"github.com/crytic/provenance/compilation/hashing"
	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/metrics"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"golang.org/x/time/rate"
)

const (
	// ipfsURLPrefix is the prefix of IPFS source URLs recorded in metadata.
	ipfsURLPrefix = "dweb:/ipfs/"

	// DefaultIpfsGateway is the gateway used when none is configured.
	DefaultIpfsGateway = "https://ipfs.io/ipfs/"

	// DefaultFetchTimeout bounds a single source fetch when no timeout is configured.
	DefaultFetchTimeout = 3000 * time.Millisecond

	// maxSourceSize bounds the size of a fetched source file.
	maxSourceSize = 16 * 1024 * 1024
)

// MissingSource describes a source file referenced by metadata that was not provided.
type MissingSource struct {
	// Keccak256 is the expected 0x-prefixed keccak256 hash of the source text.
	Keccak256 string `json:"keccak256"`

	// URLs lists candidate locations of the source text.
	URLs []string `json:"urls"`
}

// SourceResolver fetches missing source files from GitHub or an IPFS gateway, accepting a file only if its hash
// matches the hash recorded in metadata. Accepted files are stored in a cache keyed by their hash.
type SourceResolver struct {
	gateway string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewSourceResolver creates a SourceResolver. A requestsPerSecond of zero disables rate limiting. If c is nil, an
// in-memory cache is used.
func NewSourceResolver(gateway string, timeout time.Duration, requestsPerSecond float64, c cache.Cache, m *metrics.Metrics) *SourceResolver {
	if gateway == "" {
		gateway = DefaultIpfsGateway
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if c == nil {
		c = cache.NewNonPersistentCache()
	}

	resolver := &SourceResolver{
		gateway: gateway,
		timeout: timeout,
		client:  &http.Client{},
		cache:   c,
		metrics: m,
		logger:  logging.GlobalLogger.NewSubLogger("module", logging.VERIFICATION_SERVICE),
	}
	if requestsPerSecond > 0 {
		resolver.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return resolver
}

// GetGithubUrl rewrites a GitHub file URL to its raw content form. Returns false if the path is not a GitHub URL.
func GetGithubUrl(path string) (string, bool) {
	if !strings.Contains(path, "github.com") {
		return "", false
	}
	rewritten := strings.Replace(path, "github.com", "raw.githubusercontent.com", 1)
	return strings.Replace(rewritten, "/blob/", "/", 1), true
}

// ResolveMissing attempts to fetch each missing source, in path order. Resolution stops at the first file which cannot
// be fetched from any candidate: the returned list of still missing files holds that file and every file not yet
// attempted.
func (r *SourceResolver) ResolveMissing(ctx context.Context, missing map[string]MissingSource) (map[string]string, []string) {
	paths := make([]string, 0, len(missing))
	for path := range missing {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	resolved := make(map[string]string)
	for i, path := range paths {
		content, ok := r.resolve(ctx, path, missing[path])
		if !ok {
			return resolved, paths[i:]
		}
		resolved[path] = content
	}
	return resolved, nil
}

// resolve fetches a single missing source from its candidates.
func (r *SourceResolver) resolve(ctx context.Context, path string, source MissingSource) (string, bool) {
	if content, err := r.cache.Get(cache.BUCKET_SOURCES, []byte(strings.ToLower(source.Keccak256))); err == nil {
		r.metrics.RecordSourceFetch("cache", "success")
		return string(content), true
	}

	if githubUrl, ok := GetGithubUrl(path); ok {
		return r.Fetch(ctx, githubUrl, source.Keccak256, "github")
	}

	for _, url := range source.URLs {
		if !strings.HasPrefix(url, ipfsURLPrefix) {
			continue
		}
		ipfsUrl := r.gateway + strings.TrimPrefix(url, ipfsURLPrefix)
		if content, ok := r.Fetch(ctx, ipfsUrl, source.Keccak256, "ipfs"); ok {
			return content, true
		}
	}
	return "", false
}

// Fetch retrieves the text at the URL. If expectedHash is not empty, the text is only accepted when its keccak256 hash
// equals it. The origin labels the fetch in metrics.
func (r *SourceResolver) Fetch(ctx context.Context, url string, expectedHash string, origin string) (string, bool) {
	content, err := r.fetch(ctx, url)
	if err != nil {
		r.metrics.RecordSourceFetch(origin, "failed")
		r.logger.Debug("Couldn't fetch ", url, err)
		return "", false
	}

	if expectedHash != "" {
		if hashing.Keccak256Hex(content) != strings.ToLower(expectedHash) {
			r.metrics.RecordSourceFetch(origin, "hash_mismatch")
			r.logger.Warn("The calculated and the provided hash don't match for ", url)
			return "", false
		}
		if err = r.cache.Put(cache.BUCKET_SOURCES, []byte(strings.ToLower(expectedHash)), content); err != nil {
			r.logger.Warn("Failed to cache source fetched from ", url, err)
		}
	}

	r.metrics.RecordSourceFetch(origin, "success")
	r.logger.Debug("Fetched source from ", url)
	return string(content), true
}

// fetch performs a single GET request bounded by the resolver's timeout.
func (r *SourceResolver) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
	return content, errors.WithStack(err)
}
