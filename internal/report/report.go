// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

// Package report renders settled tax lines as CSV and plain text.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"cointax/internal/taxlot"
)

const dateLayout = "2006-01-02"

var header = []string{"kind", "asset", "acquired", "date", "quantity", "proceeds", "cost_basis", "gain_loss", "term", "income"}

func money(d decimal.Decimal) string { return d.StringFixed(taxlot.Places) }

// WriteCSV writes one row per tax line and income line.
func WriteCSV(w io.Writer, s taxlot.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range s.Rows {
		rec := []string{string(r.Kind), r.Asset, r.AcquiredAt.Format(dateLayout), r.Date.Format(dateLayout), r.Quantity.String()}
		switch r.Kind {
		case taxlot.DisposalRow:
			rec = append(rec, money(r.Proceeds), money(r.CostBasis), money(r.GainLoss), string(r.Term), "")
		case taxlot.IncomeRow:
			rec = append(rec, "", "", "", "", money(r.Income))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PrintSummary writes yearly totals per asset followed by the grand totals.
func PrintSummary(w io.Writer, s taxlot.Summary) {
	years := make([]int, 0, len(s.ByYear))
	for y := range s.ByYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		fmt.Fprintf(w, "Year %d:\n", y)
		assets := make([]string, 0, len(s.ByYear[y]))
		for a := range s.ByYear[y] {
			assets = append(assets, a)
		}
		sort.Strings(assets)
		for _, a := range assets {
			g := s.ByYear[y][a]
			fmt.Fprintf(w, "    %s: short=%s long=%s income=%s\n", a, money(g.Short), money(g.Long), money(g.Income))
		}
	}
	fmt.Fprintf(w, "Total: short=%s long=%s income=%s\n", money(s.ShortTerm), money(s.LongTerm), money(s.Income))
	for _, a := range s.Failed {
		fmt.Fprintf(w, "Excluded: %s gains (settlement failed)\n", a)
	}
}

// PrintOpenLots lists the lots still held after settlement, oldest first.
func PrintOpenLots(w io.Writer, results []taxlot.AssetResult) {
	for _, r := range results {
		if r.Err != nil || len(r.OpenLots) == 0 {
			continue
		}
		fmt.Fprintf(w, "Open lots %s:\n", r.Asset)
		for _, lot := range r.OpenLots {
			fmt.Fprintf(w, "    %s amt=%s unitCost=%s fee=%s basis=%s\n",
				lot.AcquiredAt.Format(dateLayout), lot.Quantity.String(), lot.UnitCost.String(), money(lot.Fee), money(lot.Cost()))
		}
	}
}
