package remote

import (
	"context"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

const (
	DefaultChunkSize   = 200
	DefaultConcurrency = 4
)

// ChunkOptions bounds a batched revision query.
type ChunkOptions struct {
	Size        int
	Concurrency int
}

// FetchRevisions queries LatestRevisions in chunks with a fixed concurrency cap. Results keep
// the order of ids.
func FetchRevisions(ctx context.Context, tracker RevisionTracker, ids []metadata.Identity, opts ChunkOptions) ([]ChangeElement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if opts.Size <= 0 {
		opts.Size = DefaultChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	chunks := lo.Chunk(ids, opts.Size)
	results := make([][]ChangeElement, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			changes, err := tracker.LatestRevisions(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = changes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Flatten(results), nil
}

// MaxRevision returns the highest revision in changes, or 0.
func MaxRevision(changes []ChangeElement) int64 {
	var max int64
	for _, c := range changes {
		if c.Revision > max {
			max = c.Revision
		}
	}
	return max
}
