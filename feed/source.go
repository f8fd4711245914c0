// Package feed reads text sources incrementally and turns them into
// indexed chunks for the synthesis pipeline.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrSourceExhausted marks a source read past its end. Sources return
// io.EOF directly; this sentinel exists for collaborators that need to
// distinguish exhaustion from failure.
var ErrSourceExhausted = errors.New("feed: source exhausted")

// Source is an incremental text producer. Reads continue until io.EOF;
// any other error is unrecoverable and surfaces as a fetch error.
type Source interface {
	io.Reader

	// SourceID identifies the source in session metadata and logs.
	SourceID() string
}

// Sizer is implemented by sources that know their total size in bytes,
// used for best-effort total chunk estimates.
type Sizer interface {
	Len() int64
}

// ReaderSource adapts any io.Reader (stdin, test fixtures) to Source.
type ReaderSource struct {
	R  io.Reader
	ID string
}

// NewReaderSource wraps r with the given ID.
func NewReaderSource(r io.Reader, id string) *ReaderSource {
	return &ReaderSource{R: r, ID: id}
}

// NewStringSource creates an in-memory source.
func NewStringSource(text, id string) *ReaderSource {
	return &ReaderSource{R: strings.NewReader(text), ID: id}
}

// Read implements io.Reader.
func (s *ReaderSource) Read(p []byte) (int, error) { return s.R.Read(p) }

// SourceID implements Source.
func (s *ReaderSource) SourceID() string { return s.ID }

// Len implements Sizer when the underlying reader knows its length.
func (s *ReaderSource) Len() int64 {
	if l, ok := s.R.(interface{ Len() int }); ok {
		return int64(l.Len())
	}
	return 0
}

// FileSource reads a local file.
type FileSource struct {
	f    *os.File
	path string
	size int64
}

// NewFileSource opens path for reading.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("feed: opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("feed: stat %s: %w", path, err)
	}
	return &FileSource{f: f, path: path, size: info.Size()}, nil
}

// Read implements io.Reader.
func (s *FileSource) Read(p []byte) (int, error) { return s.f.Read(p) }

// SourceID implements Source.
func (s *FileSource) SourceID() string { return s.path }

// Len implements Sizer.
func (s *FileSource) Len() int64 { return s.size }

// Close releases the file handle.
func (s *FileSource) Close() error { return s.f.Close() }

// HTTPSource streams the body of a URL.
type HTTPSource struct {
	url  string
	body io.ReadCloser
	size int64
}

// NewHTTPSource fetches url and returns a source over the response
// body. Non-2xx responses are fetch errors.
func NewHTTPSource(ctx context.Context, url string, client *http.Client) (*HTTPSource, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: building request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: fetching %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("feed: fetching %s: unexpected status %d", url, resp.StatusCode)
	}
	return &HTTPSource{url: url, body: resp.Body, size: resp.ContentLength}, nil
}

// Read implements io.Reader.
func (s *HTTPSource) Read(p []byte) (int, error) { return s.body.Read(p) }

// SourceID implements Source.
func (s *HTTPSource) SourceID() string { return s.url }

// Len implements Sizer; zero when the server sent no Content-Length.
func (s *HTTPSource) Len() int64 {
	if s.size < 0 {
		return 0
	}
	return s.size
}

// Close releases the response body.
func (s *HTTPSource) Close() error { return s.body.Close() }
