package mango

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sony/gobreaker/v2"

	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

// errNotOnMirror is a 404; the mirror is fine, it just doesn't have that day.
var errNotOnMirror = errors.New("not on mirror")

// A Fetcher downloads daily archives from a remote mirror into the
// data dir. The URL template may use {name}, {code} and {date}.
//
// All downloads go through a circuit breaker, so once the mirror looks
// dead the remaining sites fail fast instead of each waiting out its
// timeout.
type Fetcher struct {
	URLTemplate string
	DataDir     string

	client  *http.Client
	breaker *gobreaker.CircuitBreaker[int64]
}

func NewFetcher(urlTemplate, dataDir string, timeout time.Duration) *Fetcher {
	return NewFetcherWithClient(urlTemplate, dataDir, &http.Client{Timeout: timeout})
}

func NewFetcherWithClient(urlTemplate, dataDir string, client *http.Client) *Fetcher {
	cb := gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:        "archive-mirror",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotOnMirror) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			mosaic.Logf("[Fetcher] circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Fetcher{
		URLTemplate: urlTemplate,
		DataDir:     dataDir,
		client:      client,
		breaker:     cb,
	}
}

// URL is where the archive for site and the (UTC) day of t lives.
func (f *Fetcher) URL(site mosaic.Site, t time.Time) string {
	return strings.NewReplacer(
		"{name}", site.Name,
		"{code}", site.Code,
		"{date}", t.UTC().Format(DateLayout),
	).Replace(f.URLTemplate)
}

// Fetch makes sure the archive for site and day is in the data dir,
// and returns its path. A local file whose size matches the remote
// Content-Length is kept, without downloading it again. A download
// that comes up short is deleted. All failures are DownloadErrors.
func (f *Fetcher) Fetch(ctx context.Context, site mosaic.Site, day time.Time) (string, error) {
	url := f.URL(site, day)
	path := ArchivePath(f.DataDir, site, day)

	n, err := f.breaker.Execute(func() (int64, error) {
		return f.download(ctx, url, path)
	})
	if err != nil {
		return "", &mosaic.DownloadError{Site: site.Name, URL: url, Err: err}
	}

	if n > 0 {
		mosaic.Logf("[Fetcher] downloaded %s (%s)", url, humanize.Bytes(uint64(n)))
	} else {
		mosaic.Logf("[Fetcher] already have %s", path)
	}
	return path, nil
}

// download returns how many bytes it wrote, or zero if the file was already there.
func (f *Fetcher) download(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, errNotOnMirror
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("status %s", resp.Status)
	}

	size := resp.ContentLength
	if fi, err := os.Stat(path); err == nil && size >= 0 && fi.Size() == size {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}
	part := path + ".part"
	out, err := os.Create(part)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("short download, got %s of %s", humanize.Bytes(uint64(n)), humanize.Bytes(uint64(size)))
	}
	if err != nil {
		os.Remove(part)
		return 0, err
	}

	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return 0, err
	}
	return n, nil
}

// State reports the circuit breaker state, for logs.
func (f *Fetcher) State() gobreaker.State { return f.breaker.State() }
