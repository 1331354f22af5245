package acquire

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/phpup/pkg/checksum"
	"github.com/matzehuels/phpup/pkg/mirror"
)

// ChecksumSource publishes the expected digests of an artifact. A source
// that knows nothing about ref returns an empty set and no error.
type ChecksumSource interface {
	Checksums(ctx context.Context, ref mirror.ArtifactRef) (checksum.Set, error)
}

// ChecksumSources tries each source in order and returns the first
// non-empty set.
type ChecksumSources []ChecksumSource

func (s ChecksumSources) Checksums(ctx context.Context, ref mirror.ArtifactRef) (checksum.Set, error) {
	var firstErr error
	for _, src := range s {
		sums, err := src.Checksums(ctx, ref)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(sums) > 0 {
			return sums, nil
		}
	}
	return nil, firstErr
}

// Fetcher resolves an artifact to its mirror set and downloads it.
type Fetcher struct {
	Catalog  *mirror.Catalog
	Ranker   *mirror.Ranker // optional
	Acquirer *Acquirer
	Sums     ChecksumSource // optional
	Logger   *log.Logger
}

// FetchArtifact downloads ref to dest. Published checksums are enforced
// when the checksum source has them; a checksum source failure only
// disables verification.
func (f *Fetcher) FetchArtifact(ctx context.Context, ref mirror.ArtifactRef, dest string) (*Result, error) {
	logger := f.Logger
	if logger == nil {
		logger = log.Default()
	}
	urls, err := f.Catalog.URLsFor(ref)
	if err != nil {
		return nil, err
	}
	if f.Ranker != nil {
		urls = f.Ranker.Rank(ctx, urls)
	}

	var expected checksum.Set
	if f.Sums != nil {
		expected, err = f.Sums.Checksums(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("no published checksum, skipping verification", "artifact", ref.Key(), "error", err)
		}
	}

	logger.Debug("fetching artifact", "artifact", ref.Key(), "mirrors", len(urls), "verified", len(expected) > 0)
	return f.Acquirer.Fetch(ctx, Request{
		Key:         ref.Key(),
		URLs:        urls,
		Destination: dest,
		Expected:    expected,
	})
}
