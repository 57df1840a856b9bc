package square

import (
	"encoding/json"
	"fmt"
	"time"

	"catalogsync/internal/models"
)

const (
	ObjectTypeItem          = "ITEM"
	ObjectTypeItemVariation = "ITEM_VARIATION"
)

// Money is the wire form of an amount in minor units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CatalogObject is the subset of a Square catalog object this tool reads
// and writes. Unknown fields are ignored.
type CatalogObject struct {
	Type              string             `json:"type"`
	ID                string             `json:"id"`
	Version           int64              `json:"version,omitempty"`
	IsDeleted         bool               `json:"is_deleted,omitempty"`
	UpdatedAt         *time.Time         `json:"updated_at,omitempty"`
	ItemData          *ItemData          `json:"item_data,omitempty"`
	ItemVariationData *ItemVariationData `json:"item_variation_data,omitempty"`
}

type ItemData struct {
	Name   string   `json:"name,omitempty"`
	TaxIDs []string `json:"tax_ids,omitempty"`
}

type ItemVariationData struct {
	ItemID          string  `json:"item_id,omitempty"`
	Name            string  `json:"name,omitempty"`
	SKU             *string `json:"sku,omitempty"`
	UPC             *string `json:"upc,omitempty"`
	PricingType     string  `json:"pricing_type,omitempty"`
	PriceMoney      *Money  `json:"price_money,omitempty"`
	DefaultUnitCost *Money  `json:"default_unit_cost,omitempty"`
}

// ListCatalogResponse is one page of /v2/catalog/list. Objects are kept raw
// so each can be decoded and checked individually.
type ListCatalogResponse struct {
	Cursor  string            `json:"cursor,omitempty"`
	Objects []json.RawMessage `json:"objects,omitempty"`
	Errors  []Error           `json:"errors,omitempty"`
}

type BatchRetrieveRequest struct {
	ObjectIDs                 []string `json:"object_ids"`
	IncludeCategoryPathToRoot bool     `json:"include_category_path_to_root"`
	IncludeRelatedObjects     bool     `json:"include_related_objects"`
}

type BatchRetrieveResponse struct {
	Objects []CatalogObject `json:"objects,omitempty"`
	Errors  []Error         `json:"errors,omitempty"`
}

type BatchDeleteRequest struct {
	ObjectIDs []string `json:"object_ids"`
}

type BatchDeleteResponse struct {
	DeletedObjectIDs []string `json:"deleted_object_ids,omitempty"`
	DeletedAt        string   `json:"deleted_at,omitempty"`
	Errors           []Error  `json:"errors,omitempty"`
}

type UpsertBatch struct {
	Objects []CatalogObject `json:"objects"`
}

type BatchUpsertRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	Batches        []UpsertBatch `json:"batches"`
}

// ObjectCount is the number of objects across all batches.
func (r *BatchUpsertRequest) ObjectCount() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Objects)
	}
	return n
}

type IDMapping struct {
	ClientObjectID string `json:"client_object_id"`
	ObjectID       string `json:"object_id"`
}

type BatchUpsertResponse struct {
	Objects    []CatalogObject `json:"objects,omitempty"`
	IDMappings []IDMapping     `json:"id_mappings,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
	Errors     []Error         `json:"errors,omitempty"`
}

// PriceUpdate builds the minimal upsert object that changes a variation's
// price in place.
func PriceUpdate(variationID string, price models.Money) CatalogObject {
	return CatalogObject{
		Type: ObjectTypeItemVariation,
		ID:   variationID,
		ItemVariationData: &ItemVariationData{
			PriceMoney: &Money{Amount: price.Amount, Currency: price.Currency},
		},
	}
}

// DecodeVariation strictly decodes one raw catalog object as an
// ITEM_VARIATION. Any mismatch is a *SchemaError.
func DecodeVariation(raw json.RawMessage) (models.Variant, error) {
	var obj CatalogObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.Variant{}, &SchemaError{Op: "decode catalog object", Err: err}
	}
	if obj.Type != ObjectTypeItemVariation {
		return models.Variant{}, &SchemaError{Op: "decode catalog object", Err: fmt.Errorf("object %q has type %q, want %s", obj.ID, obj.Type, ObjectTypeItemVariation)}
	}
	if obj.ID == "" {
		return models.Variant{}, &SchemaError{Op: "decode catalog object", Err: fmt.Errorf("item variation without id")}
	}
	if obj.ItemVariationData == nil {
		return models.Variant{}, &SchemaError{Op: "decode catalog object", Err: fmt.Errorf("item variation %s has no item_variation_data", obj.ID)}
	}
	return obj.Variant(), nil
}

// Variant converts an ITEM_VARIATION object to the domain model.
func (o CatalogObject) Variant() models.Variant {
	v := models.Variant{
		ID:        o.ID,
		Version:   o.Version,
		IsDeleted: o.IsDeleted,
	}
	if d := o.ItemVariationData; d != nil {
		v.ItemID = d.ItemID
		v.Name = d.Name
		v.SKU = d.SKU
		v.UPC = d.UPC
		v.PricingType = d.PricingType
		v.PriceMoney = d.PriceMoney.model()
		v.DefaultUnitCost = d.DefaultUnitCost.model()
	}
	return v
}

// FirstTaxID returns the first tax id of an ITEM object, if any.
func (o CatalogObject) FirstTaxID() (string, bool) {
	if o.ItemData == nil || len(o.ItemData.TaxIDs) == 0 {
		return "", false
	}
	return o.ItemData.TaxIDs[0], true
}

func (m *Money) model() *models.Money {
	if m == nil {
		return nil
	}
	return &models.Money{Amount: m.Amount, Currency: m.Currency}
}
