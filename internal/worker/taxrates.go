package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const taxLookupChunkSize = 1000

// resolveTaxIDs maps each item id to its first tax id. Chunks are retrieved
// concurrently and merged only after all of them succeed; one failed chunk
// fails the lookup. Items without a tax id are absent from the result.
func (w *Worker) resolveTaxIDs(ctx context.Context, itemIDs []string) (map[string]string, error) {
	chunks := chunk(itemIDs, taxLookupChunkSize)
	results := make([]map[string]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.TaxLookupConcurrency)

	for i, ids := range chunks {
		g.Go(func() error {
			resp, err := w.api.BatchRetrieve(gctx, ids)
			if err != nil {
				return fmt.Errorf("failed to retrieve items chunk %d/%d: %w", i+1, len(chunks), err)
			}

			found := make(map[string]string, len(resp.Objects))
			for _, obj := range resp.Objects {
				if taxID, ok := obj.FirstTaxID(); ok {
					found[obj.ID] = taxID
				}
			}
			results[i] = found
			w.logger.Debug("Resolved tax ids for chunk %d/%d (%d of %d items)", i+1, len(chunks), len(found), len(ids))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]string)
	for _, found := range results {
		for itemID, taxID := range found {
			merged[itemID] = taxID
		}
	}
	return merged, nil
}

// chunk splits s into consecutive slices of at most size elements.
func chunk[T any](s []T, size int) [][]T {
	var out [][]T
	for len(s) > 0 {
		n := min(size, len(s))
		out = append(out, s[:n:n])
		s = s[n:]
	}
	return out
}
