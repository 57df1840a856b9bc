package repricing

import (
	"sort"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/pricing"
	"catalogsync/internal/worker/processors/validation"
)

// Update is a staged price change for one variation.
type Update struct {
	Variant  models.Variant
	TaxID    string
	Quote    pricing.Quote
	NewPrice models.Money
}

// Summary counts how a plan treated the fetched variants.
type Summary struct {
	Fetched    int
	Excluded   int
	NoTax      int
	Unchanged  int
	Retargeted int
}

type Repricer struct {
	policy    pricing.Policy
	taxes     pricing.TaxTable
	validator *validation.Validator
	logger    *logger.Logger
}

func New(policy pricing.Policy, taxes pricing.TaxTable, validator *validation.Validator, logger *logger.Logger) *Repricer {
	return &Repricer{
		policy:    policy,
		taxes:     taxes,
		validator: validator,
		logger:    logger,
	}
}

// ItemIDs returns the sorted, unique parent item ids of every pricing
// candidate.
func (r *Repricer) ItemIDs(variants []models.Variant) []string {
	seen := make(map[string]struct{})
	for _, v := range variants {
		if ok, _ := r.validator.PricingCandidate(v); !ok || v.ItemID == "" {
			continue
		}
		seen[v.ItemID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Plan quotes every candidate against the policy. taxIDs must be the fully
// resolved item-to-tax mapping. An unknown tax id aborts the plan.
func (r *Repricer) Plan(variants []models.Variant, taxIDs map[string]string) ([]Update, Summary, error) {
	summary := Summary{Fetched: len(variants)}
	var updates []Update

	for _, v := range variants {
		if ok, reason := r.validator.PricingCandidate(v); !ok {
			r.logger.Debug("Skipping variation %s: %s", v.ID, reason)
			summary.Excluded++
			continue
		}

		taxID, ok := taxIDs[v.ItemID]
		if !ok {
			r.logger.Debug("Skipping variation %s: item %s has no tax", v.ID, v.ItemID)
			summary.NoTax++
			continue
		}
		rate, err := r.taxes.Rate(taxID)
		if err != nil {
			return nil, summary, err
		}

		q := r.policy.Quote(v.PriceMoney.Amount, v.DefaultUnitCost.Amount, rate)
		if !q.Retarget {
			summary.Unchanged++
			continue
		}

		summary.Retargeted++
		updates = append(updates, Update{
			Variant:  v,
			TaxID:    taxID,
			Quote:    q,
			NewPrice: models.Money{Amount: q.NewPriceMinor, Currency: v.PriceMoney.Currency},
		})
	}

	return updates, summary, nil
}
