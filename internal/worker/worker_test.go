package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"testing"

	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/pricing"
	"catalogsync/internal/services/square"
	"catalogsync/internal/squaretest"
	"catalogsync/internal/worker/processors/export"
	"catalogsync/internal/worker/processors/repricing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type harness struct {
	srv    *squaretest.Server
	worker *Worker
	logs   *observer.ObservedLogs
	out    *bytes.Buffer
	events *recordingWriter
}

func newHarness(t *testing.T, dryRun bool) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	l := logger.NewWithZap(zap.New(core))

	srv := squaretest.New(t)
	cfg := &config.Config{
		TargetMargin:         "0.40",
		TaxRates:             "TAX-STD=0.20,TAX-RED=0.05",
		TaxLookupConcurrency: 2,
		DryRun:               dryRun,
	}
	events := &recordingWriter{}
	out := &bytes.Buffer{}

	w, err := New(cfg, l, square.NewClient(srv.Options(), l), export.NewWithWriter(events, l), out)
	require.NoError(t, err)

	return &harness{srv: srv, worker: w, logs: logs, out: out, events: events}
}

// sameUPC returns n variations sharing one UPC with versions 1..n.
func sameUPC(n int) []json.RawMessage {
	objs := make([]json.RawMessage, 0, n)
	for i := 1; i <= n; i++ {
		objs = append(objs, squaretest.Variation(fmt.Sprintf("V%04d", i), "I1", "5000000000001", int64(i), 135, 86))
	}
	return objs
}

func chunkSizes(calls [][]string) []int {
	sizes := make([]int, 0, len(calls))
	for _, c := range calls {
		sizes = append(sizes, len(c))
	}
	return sizes
}

func TestDeleteDuplicatesDryRunPreviewsChunks(t *testing.T) {
	h := newHarness(t, true)
	objs := sameUPC(451)
	h.srv.SetPages(
		squaretest.Page{Objects: objs[:200]},
		squaretest.Page{Objects: objs[200:400]},
		squaretest.Page{Objects: objs[400:]},
	)

	deleted, err := h.worker.DeleteDuplicates(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 450, deleted)
	assert.Empty(t, h.srv.DeleteCalls())
	assert.Empty(t, h.events.msgs)

	previews := h.logs.FilterMessageSnippet("dry run: would delete chunk").AllUntimed()
	require.Len(t, previews, 3)
	assert.Equal(t, "dry run: would delete chunk 1/3 (200 objects)", previews[0].Message)
	assert.Equal(t, "dry run: would delete chunk 2/3 (200 objects)", previews[1].Message)
	assert.Equal(t, "dry run: would delete chunk 3/3 (50 objects)", previews[2].Message)
}

func TestDeleteDuplicatesLiveUsesSameChunking(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: sameUPC(451)})

	deleted, err := h.worker.DeleteDuplicates(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 450, deleted)
	calls := h.srv.DeleteCalls()
	assert.Equal(t, []int{200, 200, 50}, chunkSizes(calls))
	assert.Equal(t, "V0001", calls[0][0])
	for _, c := range calls {
		assert.NotContains(t, c, "V0451", "newest version survives")
	}
	assert.Len(t, h.events.msgs, 450)
}

func TestDeleteDuplicatesKeepsNewestVersion(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: []json.RawMessage{
		squaretest.Variation("old", "I1", "123", 5, 135, 86),
		squaretest.Variation("new", "I1", "123", 9, 135, 86),
		squaretest.Variation("solo", "I2", "456", 1, 135, 86),
	}})

	deleted, err := h.worker.DeleteDuplicates(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, deleted)
	assert.Equal(t, [][]string{{"old"}}, h.srv.DeleteCalls())

	require.Len(t, h.events.msgs, 1)
	var ev export.Event
	require.NoError(t, json.Unmarshal(h.events.msgs[0].Value, &ev))
	assert.Equal(t, export.EventVariantDeleted, ev.Type)
	assert.Equal(t, "old", ev.VariantID)
	assert.Equal(t, "123", ev.Data["upc"])
}

func TestDeleteDuplicatesAbortsOnFailedChunk(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: sameUPC(451)})
	h.srv.FailDelete(http.StatusBadRequest, 1)

	deleted, err := h.worker.DeleteDuplicates(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/3")
	assert.Equal(t, 200, deleted)
	assert.Len(t, h.srv.DeleteCalls(), 1)
}

func TestListDuplicatesWritesGroups(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: []json.RawMessage{
		squaretest.Variation("old", "I1", "123", 5, 135, 86),
		squaretest.Variation("new", "I1", "123", 9, 135, 86),
	}})

	require.NoError(t, h.worker.Run(context.Background(), CommandListDuplicates))

	assert.Contains(t, h.out.String(), "UPC")
	assert.Regexp(t, `123\s+new\s+9\s+old`, h.out.String())
	assert.Empty(t, h.srv.DeleteCalls())
}

func TestListZeroMargin(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: []json.RawMessage{
		squaretest.Variation("loss", "I1", "", 1, 50, 80),
		squaretest.Variation("even", "I1", "", 1, 80, 80),
		squaretest.Variation("fine", "I1", "", 1, 135, 86),
		squaretest.Variation("nocost", "I1", "", 1, 135, 0),
	}})

	require.NoError(t, h.worker.Run(context.Background(), CommandListZeroMargin))

	out := h.out.String()
	assert.Regexp(t, `loss\s+SKU-loss\s+Variation loss\s+0\.50\s+0\.80\s+GBP`, out)
	assert.Contains(t, out, "even")
	assert.NotContains(t, out, "fine")
	assert.NotContains(t, out, "nocost")
}

func TestApplyPriceTargetsUpdatesLowMarginOnly(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: []json.RawMessage{
		squaretest.Variation("low", "I1", "", 3, 13500, 8600),
		squaretest.Variation("healthy", "I1", "", 3, 20000, 8600),
		squaretest.Variation("loss", "I1", "", 3, 50, 80),
		squaretest.Variation("untaxed", "I2", "", 3, 13500, 8600),
		squaretest.Variation("noprice", "I3", "", 3, 0, 8600),
	}})
	h.srv.SetItem("I1", "TAX-STD")
	h.srv.SetItem("I2")

	updated, err := h.worker.ApplyPriceTargets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	assert.Equal(t, [][]string{{"I1", "I2"}}, h.srv.RetrieveCalls())

	applied := h.srv.AppliedUpserts()
	require.Len(t, applied, 1)
	assert.NotEmpty(t, applied[0].IdempotencyKey)
	require.Len(t, applied[0].Batches, 1)
	require.Len(t, applied[0].Batches[0].Objects, 1)
	obj := applied[0].Batches[0].Objects[0]
	assert.Equal(t, "low", obj.ID)
	assert.Equal(t, square.ObjectTypeItemVariation, obj.Type)
	assert.Equal(t, &square.Money{Amount: 17199, Currency: "GBP"}, obj.ItemVariationData.PriceMoney)

	assert.Regexp(t, `low\s+SKU-low\s+135\.00\s+171\.99\s+0\.24\s+0\.40\s+GBP`, h.out.String())

	require.Len(t, h.events.msgs, 1)
	var ev export.Event
	require.NoError(t, json.Unmarshal(h.events.msgs[0].Value, &ev))
	assert.Equal(t, export.EventVariantRepriced, ev.Type)
	assert.Equal(t, float64(13500), ev.Data["old_amount"])
	assert.Equal(t, float64(17199), ev.Data["new_amount"])
}

func TestApplyPriceTargetsDryRunSendsNothing(t *testing.T) {
	h := newHarness(t, true)
	h.srv.SetPages(squaretest.Page{Objects: []json.RawMessage{
		squaretest.Variation("low", "I1", "", 3, 13500, 8600),
	}})
	h.srv.SetItem("I1", "TAX-STD")

	updated, err := h.worker.ApplyPriceTargets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, updated)
	assert.Empty(t, h.srv.UpsertKeys())
	assert.Len(t, h.logs.FilterMessageSnippet("dry run: would upsert request 1/1").AllUntimed(), 1)
	assert.Contains(t, h.out.String(), "171.99")
}

func TestApplyPriceTargetsFailsOnUnknownTaxCategory(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: []json.RawMessage{
		squaretest.Variation("low", "I1", "", 3, 13500, 8600),
	}})
	h.srv.SetItem("I1", "TAX-UNKNOWN")

	_, err := h.worker.ApplyPriceTargets(context.Background())

	var unknown *pricing.UnknownTaxCategoryError
	require.True(t, errors.As(err, &unknown))
	assert.Empty(t, h.srv.UpsertKeys())
}

func TestApplyPriceTargetsFailsWhenTaxLookupFails(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: []json.RawMessage{
		squaretest.Variation("low", "I1", "", 3, 13500, 8600),
	}})
	h.srv.FailRetrieve(http.StatusForbidden)

	_, err := h.worker.ApplyPriceTargets(context.Background())

	var apiErr *square.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Empty(t, h.srv.UpsertKeys())
}

func TestApplyPriceTargetsChunksTaxLookups(t *testing.T) {
	h := newHarness(t, false)
	objs := make([]json.RawMessage, 0, 2500)
	for i := 0; i < 2500; i++ {
		itemID := fmt.Sprintf("I%04d", i)
		objs = append(objs, squaretest.Variation(fmt.Sprintf("V%04d", i), itemID, "", 1, 13500, 8600))
		h.srv.SetItem(itemID, "TAX-STD")
	}
	h.srv.SetPages(squaretest.Page{Objects: objs[:1250]}, squaretest.Page{Objects: objs[1250:]})

	updated, err := h.worker.ApplyPriceTargets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2500, updated)

	sizes := chunkSizes(h.srv.RetrieveCalls())
	sort.Ints(sizes)
	assert.Equal(t, []int{500, 1000, 1000}, sizes)

	applied := h.srv.AppliedUpserts()
	require.Len(t, applied, 1)
	assert.Equal(t, 2500, applied[0].ObjectCount())
	assert.Len(t, applied[0].Batches, 3)
}

func TestFetchSchemaViolationAbortsRun(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(squaretest.Page{Objects: []json.RawMessage{
		json.RawMessage(`{"type":"ITEM_VARIATION","id":"X","version":"nope","item_variation_data":{}}`),
	}})

	err := h.worker.Run(context.Background(), CommandDeleteDuplicates)

	var schemaErr *square.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestFetchIncompleteScanIsWarned(t *testing.T) {
	h := newHarness(t, false)
	h.srv.SetPages(
		squaretest.Page{Objects: []json.RawMessage{squaretest.Variation("A", "I1", "", 1, 50, 80)}},
		squaretest.Page{Failures: -1},
	)

	require.NoError(t, h.worker.Run(context.Background(), CommandListZeroMargin))

	assert.Len(t, h.logs.FilterMessageSnippet("Catalog scan incomplete").AllUntimed(), 1)
	assert.Regexp(t, `(?m)^A\s+SKU-A\s`, h.out.String())
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	h := newHarness(t, false)
	assert.Error(t, h.worker.Run(context.Background(), Command("sell-everything")))
}

func TestNewLogsConfiguredTaxCategories(t *testing.T) {
	h := newHarness(t, false)

	entries := h.logs.FilterMessageSnippet("tax categories").AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "Target margin 0.40, tax categories: TAX-RED,TAX-STD", entries[0].Message)
}

func TestNewRejectsBadPolicy(t *testing.T) {
	l := logger.NewNop()

	_, err := New(&config.Config{TargetMargin: "2", TaxLookupConcurrency: 1}, l, nil, export.NewWithWriter(nil, l), &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New(&config.Config{TargetMargin: "0.40", TaxRates: "broken", TaxLookupConcurrency: 1}, l, nil, export.NewWithWriter(nil, l), &bytes.Buffer{})
	assert.Error(t, err)
}

type upsertRecorder struct {
	CatalogAPI
	requests []*square.BatchUpsertRequest
}

func (u *upsertRecorder) BatchUpsert(ctx context.Context, req *square.BatchUpsertRequest) (*square.BatchUpsertResponse, error) {
	u.requests = append(u.requests, req)
	return &square.BatchUpsertResponse{}, nil
}

func TestUpsertPricesSplitsRequests(t *testing.T) {
	l := logger.NewNop()
	api := &upsertRecorder{}
	w := &Worker{config: &config.Config{}, logger: l, api: api, exporter: export.NewWithWriter(nil, l)}

	updates := make([]repricing.Update, 12000)
	for i := range updates {
		updates[i] = repricing.Update{
			Variant:  models.Variant{ID: fmt.Sprintf("V%05d", i), PriceMoney: &models.Money{Amount: 100, Currency: "GBP"}},
			NewPrice: models.Money{Amount: 195, Currency: "GBP"},
		}
	}

	updated, err := w.upsertPrices(context.Background(), updates)
	require.NoError(t, err)
	assert.Equal(t, 12000, updated)

	require.Len(t, api.requests, 2)
	assert.Len(t, api.requests[0].Batches, 10)
	assert.Equal(t, 10000, api.requests[0].ObjectCount())
	assert.Len(t, api.requests[1].Batches, 2)
	assert.Equal(t, 2000, api.requests[1].ObjectCount())
	assert.NotEqual(t, api.requests[0].IdempotencyKey, api.requests[1].IdempotencyKey)
	assert.Equal(t, "V10000", api.requests[1].Batches[0].Objects[0].ID)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1, 2}}, chunk([]int{1, 2}, 200))
}
