package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/zjrosen/tether/internal/log"
)

// DownloadEvent kinds.
const (
	DownloadStarted  = "Started"
	DownloadProgress = "Progress"
	DownloadFinished = "Finished"
)

// DownloadEvent reports installation progress. Started carries the content
// length when known; Progress carries the size of the chunk just written.
type DownloadEvent struct {
	Event         string `json:"event"`
	ContentLength *int64 `json:"contentLength,omitempty"`
	ChunkLength   int    `json:"chunkLength,omitempty"`
}

// Installer applies a downloaded artifact.
type Installer interface {
	Install(ctx context.Context, artifact string, meta Metadata) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(ctx context.Context, artifact string, meta Metadata) error

// Install calls f.
func (f InstallerFunc) Install(ctx context.Context, artifact string, meta Metadata) error {
	return f(ctx, artifact, meta)
}

// Updater checks for and installs updates.
type Updater struct {
	checker   *Checker
	installer Installer
	client    *http.Client
}

// New creates an Updater.
func New(checker *Checker, installer Installer) *Updater {
	return &Updater{checker: checker, installer: installer, client: checker.client}
}

// Check returns the available update or nil.
func (u *Updater) Check(ctx context.Context) (*Metadata, error) {
	return u.checker.Check(ctx)
}

// Install downloads the pending update, reporting progress through
// onEvent, and hands it to the Installer. It returns ErrNoUpdate when the
// running version is current.
func (u *Updater) Install(ctx context.Context, onEvent func(DownloadEvent)) error {
	if onEvent == nil {
		onEvent = func(DownloadEvent) {}
	}
	meta, err := u.checker.Refresh(ctx)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrNoUpdate
	}
	if meta.URL == "" {
		return fmt.Errorf("%w: no download url", ErrInvalidManifest)
	}

	artifact, err := u.download(ctx, meta.URL, onEvent)
	if err != nil {
		return err
	}
	defer os.Remove(artifact)

	log.Info(log.CatUpdate, "Installing update", "version", meta.Version)
	if err := u.installer.Install(ctx, artifact, *meta); err != nil {
		return fmt.Errorf("updater: installing %s: %w", meta.Version, err)
	}
	log.Info(log.CatUpdate, "Update installed", "version", meta.Version)
	return nil
}

func (u *Updater) download(ctx context.Context, url string, onEvent func(DownloadEvent)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("updater: building download request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("updater: downloading: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("updater: downloading: unexpected status %s", resp.Status)
	}

	started := DownloadEvent{Event: DownloadStarted}
	if resp.ContentLength >= 0 {
		n := resp.ContentLength
		started.ContentLength = &n
	}
	onEvent(started)

	tmp, err := os.CreateTemp("", "tether-update-*")
	if err != nil {
		return "", fmt.Errorf("updater: creating temp file: %w", err)
	}
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}

	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				return fail(fmt.Errorf("updater: writing download: %w", err))
			}
			onEvent(DownloadEvent{Event: DownloadProgress, ChunkLength: n})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(fmt.Errorf("updater: downloading: %w", rerr))
		}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("updater: closing download: %w", err)
	}
	onEvent(DownloadEvent{Event: DownloadFinished})
	return tmp.Name(), nil
}

// ReplaceExecutable installs the artifact over Target, keeping a ".old"
// copy of the previous binary until the next install.
type ReplaceExecutable struct {
	Target string
}

// Install moves artifact into place.
func (r ReplaceExecutable) Install(_ context.Context, artifact string, _ Metadata) error {
	dir := filepath.Dir(r.Target)
	staged, err := os.CreateTemp(dir, ".tether-new-*")
	if err != nil {
		return fmt.Errorf("staging update: %w", err)
	}
	stagedPath := staged.Name()
	src, err := os.Open(artifact) //nolint:gosec // G304: our own download
	if err != nil {
		_ = staged.Close()
		_ = os.Remove(stagedPath)
		return fmt.Errorf("opening download: %w", err)
	}
	_, err = io.Copy(staged, src)
	_ = src.Close()
	if cerr := staged.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(stagedPath, 0o755) //nolint:gosec // G302: executable
	}
	if err != nil {
		_ = os.Remove(stagedPath)
		return fmt.Errorf("staging update: %w", err)
	}

	old := r.Target + ".old"
	_ = os.Remove(old)
	// Renaming a running executable is allowed on every supported platform;
	// overwriting it is not on Windows.
	if err := os.Rename(r.Target, old); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(stagedPath)
		return fmt.Errorf("moving current binary aside: %w", err)
	}
	if err := os.Rename(stagedPath, r.Target); err != nil {
		_ = os.Rename(old, r.Target)
		_ = os.Remove(stagedPath)
		return fmt.Errorf("moving update into place: %w", err)
	}
	return nil
}
