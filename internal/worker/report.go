package worker

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"catalogsync/internal/catalog"
	"catalogsync/internal/models"
	"catalogsync/internal/pricing"
	"catalogsync/internal/worker/processors/repricing"
)

func writeDuplicateGroups(out io.Writer, groups []catalog.DuplicateGroup) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UPC\tKEEP\tVERSION\tDELETE")
	for _, g := range groups {
		ids := make([]string, 0, len(g.Duplicates))
		for _, d := range g.Duplicates {
			ids = append(ids, d.ID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", g.UPC, g.Survivor.ID, g.Survivor.Version, strings.Join(ids, ","))
	}
	return tw.Flush()
}

func writeZeroMargin(out io.Writer, variants []models.Variant) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSKU\tNAME\tPRICE\tCOST\tCURRENCY")
	for _, v := range variants {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID,
			v.SKUOrEmpty(),
			v.Name,
			formatMinor(v.PriceMoney.Amount),
			formatMinor(v.DefaultUnitCost.Amount),
			v.PriceMoney.Currency,
		)
	}
	return tw.Flush()
}

func writePriceUpdates(out io.Writer, updates []repricing.Update) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSKU\tOLD\tNEW\tMARGIN BEFORE\tMARGIN AFTER\tCURRENCY")
	for _, u := range updates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			u.Variant.ID,
			u.Variant.SKUOrEmpty(),
			formatMinor(u.Variant.PriceMoney.Amount),
			formatMinor(u.NewPrice.Amount),
			u.Quote.MarginBefore.StringFixed(2),
			u.Quote.MarginAfter.StringFixed(2),
			u.NewPrice.Currency,
		)
	}
	return tw.Flush()
}

func formatMinor(amount int64) string {
	return pricing.FromMinorUnits(amount).StringFixed(2)
}
