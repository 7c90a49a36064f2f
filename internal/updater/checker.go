package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/zjrosen/tether/internal/cachemanager"
	"github.com/zjrosen/tether/internal/log"
)

// maxManifestSize bounds the manifest body.
const maxManifestSize = 1 << 20

// Options configures a Checker.
type Options struct {
	Endpoint       string
	CurrentVersion string
	CacheTTL       time.Duration
	Timeout        time.Duration
	Client         *http.Client
	Platform       string
}

// Checker fetches and caches the release manifest.
type Checker struct {
	opts    Options
	client  *http.Client
	release *cachemanager.ReadThroughCache[string, Release, string]
}

// NewChecker creates a Checker. An empty Endpoint makes every check report
// no update.
func NewChecker(opts Options) *Checker {
	if opts.Platform == "" {
		opts.Platform = PlatformKey(runtime.GOOS, runtime.GOARCH)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	c := &Checker{opts: opts, client: client}
	cache := cachemanager.NewInMemoryCacheManager[string, Release]("update-manifest",
		cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	c.release = cachemanager.NewReadThroughCache[string, Release, string](cache, c.fetch, opts.CacheTTL <= 0)
	return c
}

// CurrentVersion returns the running version.
func (c *Checker) CurrentVersion() string {
	return c.opts.CurrentVersion
}

// Check returns the available update, or nil when the running version is
// current or no endpoint is configured.
func (c *Checker) Check(ctx context.Context) (*Metadata, error) {
	if c.opts.Endpoint == "" {
		return nil, nil
	}
	rel, err := c.release.Get(ctx, c.opts.Endpoint, c.opts.Endpoint, c.opts.CacheTTL)
	if err != nil {
		return nil, err
	}
	return c.metadata(rel), nil
}

// Refresh bypasses the cached manifest.
func (c *Checker) Refresh(ctx context.Context) (*Metadata, error) {
	if c.opts.Endpoint == "" {
		return nil, nil
	}
	rel, err := c.release.Refresh(ctx, c.opts.Endpoint, c.opts.Endpoint, c.opts.CacheTTL)
	if err != nil {
		return nil, err
	}
	return c.metadata(rel), nil
}

func (c *Checker) metadata(rel Release) *Metadata {
	if !Newer(rel.Version, c.opts.CurrentVersion) {
		log.Debug(log.CatUpdate, "Up to date", "current", c.opts.CurrentVersion, "latest", rel.Version)
		return nil
	}
	log.Info(log.CatUpdate, "Update available", "current", c.opts.CurrentVersion, "latest", rel.Version)
	return &Metadata{
		Version:        rel.Version,
		CurrentVersion: c.opts.CurrentVersion,
		Notes:          rel.Notes,
		PubDate:        rel.PubDate,
		URL:            rel.URL,
	}
}

func (c *Checker) fetch(ctx context.Context, endpoint string) (Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Release{}, fmt.Errorf("updater: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log.Debug(log.CatUpdate, "Fetching manifest", "endpoint", endpoint)
	resp, err := c.client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("updater: fetching manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("updater: fetching manifest: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return Release{}, fmt.Errorf("updater: reading manifest: %w", err)
	}
	return ParseManifest(body, c.opts.Platform)
}
