package worker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"catalogsync/internal/catalog"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/pricing"
	"catalogsync/internal/services/square"
	"catalogsync/internal/worker/processors/export"
	"catalogsync/internal/worker/processors/repricing"
	"catalogsync/internal/worker/processors/validation"
)

// Command selects the operation a run performs.
type Command string

const (
	CommandListDuplicates    Command = "list-duplicates"
	CommandDeleteDuplicates  Command = "delete-duplicates"
	CommandListZeroMargin    Command = "list-zero-margin"
	CommandApplyPriceTargets Command = "apply-price-targets"
)

var Commands = []Command{
	CommandListDuplicates,
	CommandDeleteDuplicates,
	CommandListZeroMargin,
	CommandApplyPriceTargets,
}

// CatalogAPI is the remote catalog as the worker uses it.
type CatalogAPI interface {
	square.Lister
	BatchRetrieve(ctx context.Context, objectIDs []string) (*square.BatchRetrieveResponse, error)
	BatchDelete(ctx context.Context, objectIDs []string) (*square.BatchDeleteResponse, error)
	BatchUpsert(ctx context.Context, req *square.BatchUpsertRequest) (*square.BatchUpsertResponse, error)
}

type Worker struct {
	config    *config.Config
	logger    *logger.Logger
	api       CatalogAPI
	fetcher   *square.Fetcher
	validator *validation.Validator
	repricer  *repricing.Repricer
	exporter  *export.Exporter
	out       io.Writer
}

func New(cfg *config.Config, logger *logger.Logger, api CatalogAPI, exporter *export.Exporter, out io.Writer) (*Worker, error) {
	policy, err := pricing.NewPolicy(cfg.TargetMargin)
	if err != nil {
		return nil, err
	}
	taxes, err := pricing.ParseTaxTable(cfg.TaxRates)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQUARE_TAX_RATES: %w", err)
	}

	logger.Debug("Target margin %s, tax categories: %s", policy.TargetMargin.StringFixed(2), strings.Join(taxes.IDs(), ","))

	validator := validation.New(logger)

	return &Worker{
		config:    cfg,
		logger:    logger,
		api:       api,
		fetcher:   square.NewFetcher(api, logger),
		validator: validator,
		repricer:  repricing.New(policy, taxes, validator, logger),
		exporter:  exporter,
		out:       out,
	}, nil
}

// Run executes one command end to end.
func (w *Worker) Run(ctx context.Context, cmd Command) error {
	if w.config.DryRun {
		w.logger.Info("Dry run: no catalog objects will be changed")
	}

	switch cmd {
	case CommandListDuplicates:
		return w.ListDuplicates(ctx)
	case CommandDeleteDuplicates:
		_, err := w.DeleteDuplicates(ctx)
		return err
	case CommandListZeroMargin:
		return w.ListZeroMargin(ctx)
	case CommandApplyPriceTargets:
		_, err := w.ApplyPriceTargets(ctx)
		return err
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (w *Worker) ListDuplicates(ctx context.Context) error {
	variants, err := w.fetch(ctx)
	if err != nil {
		return err
	}

	groups := catalog.GroupDuplicates(variants)
	if err := writeDuplicateGroups(w.out, groups); err != nil {
		return err
	}

	dupes := 0
	for _, g := range groups {
		dupes += len(g.Duplicates)
	}
	w.logger.Info("Found %d duplicate UPC groups (%d variations to delete)", len(groups), dupes)
	return nil
}

// DeleteDuplicates deletes every variation that lost its UPC group and
// returns how many were deleted (or would be, in a dry run).
func (w *Worker) DeleteDuplicates(ctx context.Context) (int, error) {
	variants, err := w.fetch(ctx)
	if err != nil {
		return 0, err
	}

	toDelete := catalog.ResolveDuplicates(variants)
	w.logger.Info("Resolved %d duplicate variations to delete", len(toDelete))

	index := make(map[string]models.Variant, len(variants))
	for _, v := range variants {
		index[v.ID] = v
	}
	return w.deleteObjects(ctx, toDelete.Sorted(), index)
}

func (w *Worker) ListZeroMargin(ctx context.Context) error {
	variants, err := w.fetch(ctx)
	if err != nil {
		return err
	}

	var losing []models.Variant
	for _, v := range variants {
		if w.validator.ZeroMargin(v) {
			losing = append(losing, v)
		}
	}
	if err := writeZeroMargin(w.out, losing); err != nil {
		return err
	}

	w.logger.Info("Processed %d variations, %d priced at or below cost", len(variants), len(losing))
	return nil
}

// ApplyPriceTargets raises every variation below the target margin and
// returns how many prices were updated (or would be, in a dry run).
func (w *Worker) ApplyPriceTargets(ctx context.Context) (int, error) {
	variants, err := w.fetch(ctx)
	if err != nil {
		return 0, err
	}

	itemIDs := w.repricer.ItemIDs(variants)
	taxIDs, err := w.resolveTaxIDs(ctx, itemIDs)
	if err != nil {
		return 0, err
	}
	w.logger.Info("Resolved tax categories for %d of %d items", len(taxIDs), len(itemIDs))

	updates, summary, err := w.repricer.Plan(variants, taxIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to plan price updates: %w", err)
	}
	w.logger.Info("Processed %d variations: %d to reprice, %d unchanged, %d without tax, %d excluded",
		summary.Fetched, summary.Retargeted, summary.Unchanged, summary.NoTax, summary.Excluded)

	if err := writePriceUpdates(w.out, updates); err != nil {
		return 0, err
	}
	return w.upsertPrices(ctx, updates)
}

func (w *Worker) fetch(ctx context.Context) ([]models.Variant, error) {
	result, err := w.fetcher.FetchAll(ctx, square.ObjectTypeItemVariation)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item variations: %w", err)
	}

	w.logger.Info("Fetched %d item variations across %d pages", len(result.Variants), result.Pages)
	if !result.Complete {
		w.logger.Warn("Catalog scan incomplete, results may be missing variations: %v", result.PageErr)
	}
	return result.Variants, nil
}
