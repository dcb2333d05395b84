package compilation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/crytic/provenance/compilation/platforms"
	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/utils"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// CompilerCacheConfig describes where compiler artifacts are looked up and where they are downloaded from.
type CompilerCacheConfig struct {
	// RepositoryDirectories lists directories searched for compiler artifacts, in order. Downloads are written to the
	// first directory.
	RepositoryDirectories []string `json:"repositoryDirectories"`

	// Platform is the solc-bin platform directory native binaries are fetched for, e.g. "linux-amd64".
	Platform string `json:"platform"`

	// BinaryBaseURL is the base URL of the solc-bin repository holding native binaries per platform.
	BinaryBaseURL string `json:"binaryBaseUrl"`

	// SoljsonBaseURL is the base URL holding emscripten soljson builds.
	SoljsonBaseURL string `json:"soljsonBaseUrl"`

	// DownloadRetries is the number of times a failed download is retried.
	DownloadRetries uint64 `json:"downloadRetries"`

	// DownloadTimeoutSeconds bounds a single download attempt.
	DownloadTimeoutSeconds int `json:"downloadTimeoutSeconds"`
}

// NewCompilerCacheConfig returns a CompilerCacheConfig with default values. The SOLC_REPO_TMP and SOLC_REPO environment
// variables override the default repository directories.
func NewCompilerCacheConfig() CompilerCacheConfig {
	tmpRepository := os.Getenv("SOLC_REPO_TMP")
	if tmpRepository == "" {
		tmpRepository = filepath.Join(os.TempDir(), "solc-repo")
	}
	repository := os.Getenv("SOLC_REPO")
	if repository == "" {
		repository = "solc-repo"
	}

	return CompilerCacheConfig{
		RepositoryDirectories:  []string{tmpRepository, repository},
		Platform:               "linux-amd64",
		BinaryBaseURL:          "https://github.com/ethereum/solc-bin/raw/gh-pages/",
		SoljsonBaseURL:         "https://binaries.soliditylang.org/bin/",
		DownloadRetries:        3,
		DownloadTimeoutSeconds: 120,
	}
}

// CompilerCache acquires compiler artifacts for a version: it first looks in the local repository directories, then
// downloads the artifact, and finally validates it before handing out its path. Concurrent acquisitions of the same
// artifact are coalesced within the process and serialized across processes with a file lock.
type CompilerCache struct {
	config   CompilerCacheConfig
	client   *http.Client
	group    singleflight.Group
	validate func(ctx context.Context, kind platforms.ArtifactKind, path string) error
	logger   *logging.Logger
}

// NewCompilerCache creates a CompilerCache for the provided configuration.
func NewCompilerCache(config CompilerCacheConfig) *CompilerCache {
	return &CompilerCache{
		config:   config,
		client:   &http.Client{},
		validate: validateArtifact,
		logger:   logging.GlobalLogger.NewSubLogger("module", logging.COMPILATION_SERVICE),
	}
}

// ArtifactFileName returns the file name an artifact of the given kind and version is stored under.
func (c *CompilerCache) ArtifactFileName(version string, kind platforms.ArtifactKind) string {
	if kind == platforms.ArtifactSoljson {
		return fmt.Sprintf("soljson-v%s.js", version)
	}
	return fmt.Sprintf("solc-%s-v%s", c.config.Platform, version)
}

// artifactURL returns the URL an artifact is downloaded from.
func (c *CompilerCache) artifactURL(fileName string, kind platforms.ArtifactKind) string {
	if kind == platforms.ArtifactSoljson {
		return strings.TrimSuffix(c.config.SoljsonBaseURL, "/") + "/" + url.PathEscape(fileName)
	}
	return strings.TrimSuffix(c.config.BinaryBaseURL, "/") + "/" + c.config.Platform + "/" + url.PathEscape(fileName)
}

// Acquire returns the path of a validated compiler artifact of the given kind for the provided (normalized) version.
func (c *CompilerCache) Acquire(ctx context.Context, version string, kind platforms.ArtifactKind) (string, error) {
	if len(c.config.RepositoryDirectories) == 0 {
		return "", errors.New("no compiler repository directories are configured")
	}

	fileName := c.ArtifactFileName(version, kind)
	result, err, _ := c.group.Do(fileName, func() (any, error) {
		if path, ok := c.lookup(ctx, fileName, kind); ok {
			return path, nil
		}
		return c.download(ctx, fileName, kind)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// lookup searches the repository directories for a valid artifact.
func (c *CompilerCache) lookup(ctx context.Context, fileName string, kind platforms.ArtifactKind) (string, bool) {
	for _, directory := range c.config.RepositoryDirectories {
		path := filepath.Join(directory, fileName)
		if !utils.FileExists(path) {
			continue
		}
		if err := c.validate(ctx, kind, path); err != nil {
			c.logger.Warn("Ignoring invalid compiler artifact at ", path, err)
			continue
		}
		return path, true
	}
	return "", false
}

// download fetches the artifact into the first repository directory while holding a file lock.
func (c *CompilerCache) download(ctx context.Context, fileName string, kind platforms.ArtifactKind) (string, error) {
	directory := c.config.RepositoryDirectories[0]
	if err := utils.MakeDirectory(directory); err != nil {
		return "", err
	}
	path := filepath.Join(directory, fileName)

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return "", errors.Wrapf(err, "could not lock %s for download", path)
	} else if !locked {
		return "", errors.Errorf("could not lock %s for download", path)
	}
	defer lock.Unlock()

	// Another process may have finished the download while we waited for the lock.
	if utils.FileExists(path) && c.validate(ctx, kind, path) == nil {
		return path, nil
	}

	artifactURL := c.artifactURL(fileName, kind)
	var retryPolicy backoff.BackOff = backoff.NewExponentialBackOff()
	retryPolicy = backoff.WithContext(backoff.WithMaxRetries(retryPolicy, c.config.DownloadRetries), ctx)

	var data []byte
	err = backoff.Retry(func() error {
		var fetchErr error
		data, fetchErr = c.fetch(ctx, artifactURL)
		if fetchErr != nil {
			c.logger.Debug("Failed fetching compiler from ", artifactURL, fetchErr)
		}
		return fetchErr
	}, retryPolicy)
	if err != nil {
		return "", errors.Wrapf(err, "failed fetching compiler %s", fileName)
	}

	if err = utils.WriteFileAtomically(path, data, 0755); err != nil {
		return "", err
	}
	if err = c.validate(ctx, kind, path); err != nil {
		os.Remove(path)
		return "", errors.Wrapf(err, "downloaded compiler %s is not usable on this platform", fileName)
	}

	c.logger.Info("Successfully fetched compiler ", fileName, " from ", artifactURL)
	return path, nil
}

// fetch performs a single bounded GET request. Responses other than 200 OK are retried, except for 404 which is final.
func (c *CompilerCache) fetch(ctx context.Context, artifactURL string) ([]byte, error) {
	if c.config.DownloadTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.config.DownloadTimeoutSeconds)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, backoff.Permanent(errors.WithStack(err))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(errors.Errorf("compiler not found at %s", artifactURL))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d from %s", resp.StatusCode, artifactURL)
	}
	data, err := io.ReadAll(resp.Body)
	return data, errors.WithStack(err)
}

// validateArtifact checks that a native binary runs and reports its version, or that a soljson script is non-empty.
func validateArtifact(ctx context.Context, kind platforms.ArtifactKind, path string) error {
	if kind == platforms.ArtifactSoljson {
		info, err := os.Stat(path)
		if err != nil {
			return errors.WithStack(err)
		}
		if info.Size() == 0 {
			return errors.Errorf("soljson at %s is empty", path)
		}
		return nil
	}
	_, err := platforms.GetSolcVersion(ctx, path)
	return err
}
