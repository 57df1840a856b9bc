package worker

import (
	"context"
	"fmt"

	"catalogsync/internal/models"
	"catalogsync/internal/services/square"
	"catalogsync/internal/worker/processors/export"
	"catalogsync/internal/worker/processors/repricing"

	"github.com/google/uuid"
)

const (
	deleteChunkSize      = 200
	upsertBatchSize      = 1000
	upsertBatchesPerCall = 10
)

// deleteObjects deletes ids in chunks of deleteChunkSize, one call at a
// time. The first failed chunk stops the run.
func (w *Worker) deleteObjects(ctx context.Context, ids []string, index map[string]models.Variant) (int, error) {
	chunks := chunk(ids, deleteChunkSize)
	deleted := 0

	for i, batch := range chunks {
		if w.config.DryRun {
			w.logger.Info("dry run: would delete chunk %d/%d (%d objects)", i+1, len(chunks), len(batch))
			deleted += len(batch)
			continue
		}

		if _, err := w.api.BatchDelete(ctx, batch); err != nil {
			return deleted, fmt.Errorf("failed to delete chunk %d/%d: %w", i+1, len(chunks), err)
		}
		deleted += len(batch)
		w.logger.Info("Deleted chunk %d/%d (%d objects)", i+1, len(chunks), len(batch))

		events := make([]export.Event, 0, len(batch))
		for _, id := range batch {
			v := index[id]
			events = append(events, export.NewEvent(export.EventVariantDeleted, id, v.ItemID, map[string]interface{}{
				"upc":     v.Barcode(),
				"version": v.Version,
			}))
		}
		w.publish(ctx, events)
	}

	if w.config.DryRun {
		w.logger.Info("dry run: would delete %d duplicate variations", deleted)
	} else {
		w.logger.Info("Deleted %d duplicate variations", deleted)
	}
	return deleted, nil
}

// upsertPrices sends the staged updates, sequentially, each request with
// a fresh idempotency key. The first failed request stops the run.
func (w *Worker) upsertPrices(ctx context.Context, updates []repricing.Update) (int, error) {
	objects := make([]square.CatalogObject, 0, len(updates))
	for _, u := range updates {
		objects = append(objects, square.PriceUpdate(u.Variant.ID, u.NewPrice))
	}

	requests := chunk(chunk(objects, upsertBatchSize), upsertBatchesPerCall)
	updated := 0
	offset := 0

	for i, batches := range requests {
		req := &square.BatchUpsertRequest{
			IdempotencyKey: uuid.NewString(),
			Batches:        make([]square.UpsertBatch, 0, len(batches)),
		}
		for _, b := range batches {
			req.Batches = append(req.Batches, square.UpsertBatch{Objects: b})
		}
		count := req.ObjectCount()
		sent := updates[offset : offset+count]
		offset += count

		if w.config.DryRun {
			w.logger.Info("dry run: would upsert request %d/%d (%d objects in %d batches)", i+1, len(requests), count, len(req.Batches))
			updated += count
			continue
		}

		if _, err := w.api.BatchUpsert(ctx, req); err != nil {
			return updated, fmt.Errorf("failed to upsert request %d/%d: %w", i+1, len(requests), err)
		}
		updated += count
		w.logger.Info("Upserted request %d/%d (%d objects, idempotency key %s)", i+1, len(requests), count, req.IdempotencyKey)

		events := make([]export.Event, 0, len(sent))
		for _, u := range sent {
			events = append(events, export.NewEvent(export.EventVariantRepriced, u.Variant.ID, u.Variant.ItemID, map[string]interface{}{
				"old_amount":    u.Variant.PriceMoney.Amount,
				"new_amount":    u.NewPrice.Amount,
				"currency":      u.NewPrice.Currency,
				"tax_id":        u.TaxID,
				"margin_before": u.Quote.MarginBefore.StringFixed(2),
				"margin_after":  u.Quote.MarginAfter.StringFixed(2),
			}))
		}
		w.publish(ctx, events)
	}

	if w.config.DryRun {
		w.logger.Info("dry run: would update %d prices", updated)
	} else {
		w.logger.Info("Updated %d prices", updated)
	}
	return updated, nil
}

// publish reports mutations downstream; failures are logged, the catalog
// change has already happened.
func (w *Worker) publish(ctx context.Context, events []export.Event) {
	if err := w.exporter.Publish(ctx, events); err != nil {
		w.logger.Error("Failed to publish events: %v", err)
	}
}
