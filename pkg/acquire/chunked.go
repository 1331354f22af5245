package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/phpup/pkg/mirror"
)

// part is one byte range [start, end] of a chunked download.
type part struct {
	index      int
	start, end int64
}

func (p part) size() int64 { return p.end - p.start + 1 }

// split divides size bytes into at most n parts of at least minSize bytes.
func split(size int64, n int, minSize int64) []part {
	if n < 1 {
		n = 1
	}
	if maxParts := size / minSize; int64(n) > maxParts {
		n = int(max(maxParts, 1))
	}
	chunk := (size + int64(n) - 1) / int64(n)
	parts := make([]part, 0, n)
	for i, start := 0, int64(0); start < size; i, start = i+1, start+chunk {
		parts = append(parts, part{index: i, start: start, end: min(start+chunk, size) - 1})
	}
	return parts
}

// rangeSize sends a HEAD request and reports the content length when the
// server accepts byte ranges.
func (a *Acquirer) rangeSize(ctx context.Context, url string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, false
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength <= 0 {
		return 0, false
	}
	if !strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes") {
		return 0, false
	}
	return resp.ContentLength, true
}

// fetchChunked downloads size bytes from url with parallel range requests.
// Part i is written at its own offset, so the file is assembled in index
// order whatever order the parts complete in. The first failing part
// cancels the others.
func (a *Acquirer) fetchChunked(ctx context.Context, url string, f *os.File, size int64) (int64, error) {
	if err := f.Truncate(size); err != nil {
		return 0, err
	}
	parts := split(size, a.threads, a.minChunk)

	p := a.progress()
	p.Start(url, size)
	defer p.Finish()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.threads)
	for _, pt := range parts {
		g.Go(func() error {
			return a.fetchPart(ctx, url, io.NewOffsetWriter(f, pt.start), pt, p)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	a.logger.Debug("chunked download complete", "url", url, "parts", len(parts), "bytes", size)
	return size, nil
}

func (a *Acquirer) fetchPart(ctx context.Context, url string, w io.Writer, pt part, p Progress) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", pt.start, pt.end))
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("part %d: %w", pt.index, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("part %d: %w", pt.index, &mirror.StatusError{URL: url, StatusCode: resp.StatusCode})
	}
	n, err := io.Copy(io.MultiWriter(w, progressWriter{p}), io.LimitReader(resp.Body, pt.size()))
	if err != nil {
		return fmt.Errorf("part %d: %w", pt.index, err)
	}
	if n != pt.size() {
		return fmt.Errorf("part %d: got %d of %d bytes", pt.index, n, pt.size())
	}
	return nil
}
