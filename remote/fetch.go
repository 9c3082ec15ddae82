package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrHTTPStatus is returned for responses outside the 2xx range.
var ErrHTTPStatus = errors.New("remote: unexpected HTTP status")

// Fetcher opens the byte stream behind a URL.
type Fetcher interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher fetches over HTTP. A nil Client uses http.DefaultClient.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: %s", ErrHTTPStatus, url, resp.Status)
	}
	return resp.Body, nil
}

// CachingFetcher serves URLs from a byte cache on fs and fills it by
// teeing the first complete download of each URL.
type CachingFetcher struct {
	fs   afero.Fs
	dir  string
	next Fetcher
}

// NewCachingFetcher caches next's downloads under dir on fs.
func NewCachingFetcher(fs afero.Fs, dir string, next Fetcher) *CachingFetcher {
	return &CachingFetcher{fs: fs, dir: dir, next: next}
}

// Path returns the cache file of url.
func (f *CachingFetcher) Path(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:]))
}

func (f *CachingFetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	path := f.Path(url)
	if cached, err := f.fs.Open(path); err == nil {
		return cached, nil
	} else if !os.IsNotExist(err) {
		lg.FromContext(ctx).Warn("Cache read failed", lg.String("url", url), lg.Any("error", err))
	}

	src, err := f.next.Open(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil {
		lg.FromContext(ctx).Warn("Cache disabled for download", lg.String("url", url), lg.Any("error", err))
		return src, nil
	}
	tmpPath := path + ".part-" + uuid.NewString()
	tmp, err := f.fs.Create(tmpPath)
	if err != nil {
		lg.FromContext(ctx).Warn("Cache disabled for download", lg.String("url", url), lg.Any("error", err))
		return src, nil
	}
	return &teeReadCloser{ctx: ctx, fs: f.fs, src: src, tmp: tmp, tmpPath: tmpPath, path: path}, nil
}

// teeReadCloser copies everything read from src into tmp. Close copies
// whatever the reader left unread, then moves a complete stream into
// place; a failed or truncated one is discarded.
type teeReadCloser struct {
	ctx     context.Context
	fs      afero.Fs
	src     io.ReadCloser
	tmp     afero.File
	tmpPath string
	path    string
	eof     bool
	failed  bool
}

func (t *teeReadCloser) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 && !t.failed {
		if _, werr := t.tmp.Write(p[:n]); werr != nil {
			t.failed = true
		}
	}
	if err == io.EOF {
		t.eof = true
	}
	return n, err
}

func (t *teeReadCloser) Close() error {
	if !t.eof && !t.failed {
		if _, err := io.Copy(t.tmp, t.src); err != nil {
			t.failed = true
		} else {
			t.eof = true
		}
	}
	srcErr := t.src.Close()
	tmpErr := t.tmp.Close()

	if t.eof && !t.failed && tmpErr == nil {
		if err := t.fs.Rename(t.tmpPath, t.path); err == nil {
			return srcErr
		}
	}
	if err := t.fs.Remove(t.tmpPath); err != nil {
		lg.FromContext(t.ctx).Warn("Cache cleanup failed", lg.String("path", t.tmpPath), lg.Any("error", err))
	}
	return srcErr
}
