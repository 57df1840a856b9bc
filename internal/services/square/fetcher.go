package square

import (
	"context"
	"errors"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
)

// Lister is the part of the client the fetcher needs.
type Lister interface {
	ListCatalog(ctx context.Context, types string, cursor string) (*ListCatalogResponse, error)
}

// FetchResult is everything a scan collected. When Complete is false a page
// failed and Variants holds only the pages before it.
type FetchResult struct {
	Variants []models.Variant
	Pages    int
	Complete bool
	PageErr  error
}

type Fetcher struct {
	client Lister
	logger *logger.Logger
}

func NewFetcher(client Lister, logger *logger.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		logger: logger,
	}
}

// FetchAll walks every page of /v2/catalog/list for objectType.
//
// A page that still fails after the client's retries ends the scan and the
// partial result is returned without an error. An object that does not decode
// as an item variation aborts the scan with a *SchemaError.
func (f *Fetcher) FetchAll(ctx context.Context, objectType string) (*FetchResult, error) {
	result := &FetchResult{Variants: make([]models.Variant, 0)}
	cursor := ""

	for {
		page, err := f.client.ListCatalog(ctx, objectType, cursor)
		if err != nil {
			var schemaErr *SchemaError
			if errors.As(err, &schemaErr) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Error("Failed to fetch catalog page %d: %v", result.Pages+1, err)
			result.PageErr = err
			return result, nil
		}

		for _, raw := range page.Objects {
			v, err := DecodeVariation(raw)
			if err != nil {
				return nil, err
			}
			result.Variants = append(result.Variants, v)
		}
		result.Pages++
		f.logger.Debug("Fetched page %d (%d objects)", result.Pages, len(page.Objects))

		if page.Cursor == "" {
			result.Complete = true
			return result, nil
		}
		cursor = page.Cursor
	}
}
