package updater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	data := []byte(`{
		"version": "v1.4.0",
		"notes": "## Fixes\n- faster start",
		"pub_date": "2026-01-02T03:04:05Z",
		"url": "https://example.com/generic",
		"platforms": {
			"linux-x86_64": {"url": "https://example.com/linux-amd64"}
		}
	}`)

	rel, err := ParseManifest(data, "linux-x86_64")
	require.NoError(t, err)
	require.Equal(t, "v1.4.0", rel.Version)
	require.Equal(t, "## Fixes\n- faster start", rel.Notes)
	require.Equal(t, "2026-01-02T03:04:05Z", rel.PubDate)
	require.Equal(t, "https://example.com/linux-amd64", rel.URL)

	rel, err = ParseManifest(data, "darwin-aarch64")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/generic", rel.URL)
}

func TestParseManifest_Invalid(t *testing.T) {
	for name, data := range map[string]string{
		"not json":        `{"version":`,
		"missing version": `{"notes":"x"}`,
		"not semver":      `{"version":"latest"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(data), "")
			require.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestNewer(t *testing.T) {
	tests := []struct {
		candidate, current string
		want               bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v1.2.0", "1.2.0", false},
		{"1.2.0", "v1.10.0", false},
		{"2.0.0-rc.1", "1.9.0", true},
		{"2.0.0", "2.0.0-rc.1", true},
		{"garbage", "1.0.0", false},
		{"0.0.1", "dev", true},
	}
	for _, tt := range tests {
		t.Run(tt.candidate+"_vs_"+tt.current, func(t *testing.T) {
			require.Equal(t, tt.want, Newer(tt.candidate, tt.current))
		})
	}
}

func TestPlatformKey(t *testing.T) {
	require.Equal(t, "linux-x86_64", PlatformKey("linux", "amd64"))
	require.Equal(t, "darwin-aarch64", PlatformKey("darwin", "arm64"))
	require.Equal(t, "windows-x86_64", PlatformKey("windows", "amd64"))
}

type manifestServer struct {
	*httptest.Server
	hits    atomic.Int32
	version atomic.Value
	payload string
}

func newManifestServer(t *testing.T, version string) *manifestServer {
	t.Helper()
	s := &manifestServer{payload: "new-binary-contents"}
	s.version.Store(version)
	mux := http.NewServeMux()
	mux.HandleFunc("/latest.json", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		fmt.Fprintf(w, `{"version":%q,"notes":"notes","url":%q}`, s.version.Load(), s.URL+"/download")
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(s.payload)))
		_, _ = w.Write([]byte(s.payload))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestChecker_Check_ReportsNewerVersion(t *testing.T) {
	srv := newManifestServer(t, "1.1.0")
	c := NewChecker(Options{Endpoint: srv.URL + "/latest.json", CurrentVersion: "1.0.0", CacheTTL: time.Minute})

	meta, err := c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "1.1.0", meta.Version)
	require.Equal(t, "1.0.0", meta.CurrentVersion)
	require.Equal(t, "notes", meta.Notes)
}

func TestChecker_Check_UpToDateReturnsNil(t *testing.T) {
	srv := newManifestServer(t, "1.0.0")
	c := NewChecker(Options{Endpoint: srv.URL + "/latest.json", CurrentVersion: "v1.0.0"})

	meta, err := c.Check(context.Background())
	require.NoError(t, err)
	require.Nil(t, meta)
}

func TestChecker_Check_NoEndpoint(t *testing.T) {
	meta, err := NewChecker(Options{CurrentVersion: "1.0.0"}).Check(context.Background())
	require.NoError(t, err)
	require.Nil(t, meta)
}

// TestChecker_Check_CachesManifest verifies repeated checks within the TTL
// fetch the manifest once and Refresh bypasses the cache.
func TestChecker_Check_CachesManifest(t *testing.T) {
	srv := newManifestServer(t, "1.1.0")
	c := NewChecker(Options{Endpoint: srv.URL + "/latest.json", CurrentVersion: "1.0.0", CacheTTL: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Check(ctx)
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, srv.hits.Load())

	srv.version.Store("1.2.0")
	meta, err := c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "1.2.0", meta.Version)
	require.EqualValues(t, 2, srv.hits.Load())
}

func TestChecker_Check_ZeroTTLAlwaysFetches(t *testing.T) {
	srv := newManifestServer(t, "1.1.0")
	c := NewChecker(Options{Endpoint: srv.URL + "/latest.json", CurrentVersion: "1.0.0"})

	_, err := c.Check(context.Background())
	require.NoError(t, err)
	_, err = c.Check(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, srv.hits.Load())
}

func TestChecker_Check_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c := NewChecker(Options{Endpoint: srv.URL, CurrentVersion: "1.0.0"})

	_, err := c.Check(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status")
}

func TestUpdater_Install_StreamsEventsThenInstalls(t *testing.T) {
	srv := newManifestServer(t, "2.0.0")
	c := NewChecker(Options{Endpoint: srv.URL + "/latest.json", CurrentVersion: "1.0.0", CacheTTL: time.Hour})

	var installed string
	var installedMeta Metadata
	u := New(c, InstallerFunc(func(_ context.Context, artifact string, meta Metadata) error {
		data, err := os.ReadFile(artifact)
		if err != nil {
			return err
		}
		installed, installedMeta = string(data), meta
		return nil
	}))

	var events []DownloadEvent
	require.NoError(t, u.Install(context.Background(), func(ev DownloadEvent) { events = append(events, ev) }))

	require.Equal(t, srv.payload, installed)
	require.Equal(t, "2.0.0", installedMeta.Version)

	require.GreaterOrEqual(t, len(events), 3)
	require.Equal(t, DownloadStarted, events[0].Event)
	require.NotNil(t, events[0].ContentLength)
	require.EqualValues(t, len(srv.payload), *events[0].ContentLength)
	require.Equal(t, DownloadFinished, events[len(events)-1].Event)

	total := 0
	for _, ev := range events[1 : len(events)-1] {
		require.Equal(t, DownloadProgress, ev.Event)
		total += ev.ChunkLength
	}
	require.Equal(t, len(srv.payload), total)
}

func TestUpdater_Install_NoUpdate(t *testing.T) {
	srv := newManifestServer(t, "1.0.0")
	c := NewChecker(Options{Endpoint: srv.URL + "/latest.json", CurrentVersion: "1.0.0"})
	u := New(c, InstallerFunc(func(context.Context, string, Metadata) error {
		t.Fatal("installer must not run")
		return nil
	}))

	require.ErrorIs(t, u.Install(context.Background(), nil), ErrNoUpdate)
}

func TestUpdater_Install_InstallerError(t *testing.T) {
	srv := newManifestServer(t, "2.0.0")
	c := NewChecker(Options{Endpoint: srv.URL + "/latest.json", CurrentVersion: "1.0.0"})
	boom := errors.New("read-only filesystem")
	u := New(c, InstallerFunc(func(context.Context, string, Metadata) error { return boom }))

	err := u.Install(context.Background(), nil)
	require.ErrorIs(t, err, boom)
}

func TestReplaceExecutable_Install(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tether")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o700)) //nolint:gosec // test binary
	artifact := filepath.Join(dir, "download")
	require.NoError(t, os.WriteFile(artifact, []byte("new"), 0o600))

	require.NoError(t, ReplaceExecutable{Target: target}.Install(context.Background(), artifact, Metadata{}))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
	old, err := os.ReadFile(target + ".old")
	require.NoError(t, err)
	require.Equal(t, "old", string(old))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasPrefix(e.Name(), ".tether-new-"), "staged file left behind")
	}
}
