// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package taxlot

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Gains struct {
	Short  decimal.Decimal
	Long   decimal.Decimal
	Income decimal.Decimal
}

type RowKind string

const (
	DisposalRow RowKind = "disposal"
	IncomeRow   RowKind = "income"
)

// Row is one itemized report line, either a TaxLine or an IncomeLine.
type Row struct {
	Kind       RowKind
	Asset      string
	AcquiredAt time.Time // receipt time for income rows
	Date       time.Time // disposal or receipt time
	Quantity   decimal.Decimal
	Proceeds   decimal.Decimal
	CostBasis  decimal.Decimal
	GainLoss   decimal.Decimal
	Term       Term
	Income     decimal.Decimal
}

type Summary struct {
	ShortTerm decimal.Decimal
	LongTerm  decimal.Decimal
	Income    decimal.Decimal
	// ByYear maps year -> asset -> totals.
	ByYear map[int]map[string]*Gains
	Rows   []Row
	// Failed lists the assets whose gains are left out because their
	// settlement failed.
	Failed []string
}

func (s *Summary) slot(year int, asset string) *Gains {
	if _, ok := s.ByYear[year]; !ok {
		s.ByYear[year] = make(map[string]*Gains)
	}
	g, ok := s.ByYear[year][asset]
	if !ok {
		g = &Gains{}
		s.ByYear[year][asset] = g
	}
	return g
}

// Summarize aggregates settled assets into totals and itemized rows. A year
// of zero keeps every line, otherwise only lines dated in that year count.
// Assets whose result carries an error are listed in Failed; their income
// still counts, since it is recognized before matching, but their tax lines
// are left out.
func Summarize(results []AssetResult, year int) Summary {
	s := Summary{ByYear: make(map[int]map[string]*Gains)}
	for _, r := range results {
		for _, in := range r.IncomeLines {
			y := in.ReceivedAt.Year()
			if year != 0 && y != year {
				continue
			}
			g := s.slot(y, r.Asset)
			g.Income = g.Income.Add(in.TaxableAmount)
			s.Income = s.Income.Add(in.TaxableAmount)
			s.Rows = append(s.Rows, Row{
				Kind:       IncomeRow,
				Asset:      r.Asset,
				AcquiredAt: in.ReceivedAt,
				Date:       in.ReceivedAt,
				Quantity:   in.Quantity,
				Income:     in.TaxableAmount,
			})
		}
		if r.Err != nil {
			s.Failed = append(s.Failed, r.Asset)
			continue
		}
		for _, tl := range r.TaxLines {
			y := tl.DisposedAt.Year()
			if year != 0 && y != year {
				continue
			}
			g := s.slot(y, r.Asset)
			if tl.Term == LongTerm {
				g.Long = g.Long.Add(tl.GainLoss)
				s.LongTerm = s.LongTerm.Add(tl.GainLoss)
			} else {
				g.Short = g.Short.Add(tl.GainLoss)
				s.ShortTerm = s.ShortTerm.Add(tl.GainLoss)
			}
			s.Rows = append(s.Rows, Row{
				Kind:       DisposalRow,
				Asset:      r.Asset,
				AcquiredAt: tl.AcquiredAt,
				Date:       tl.DisposedAt,
				Quantity:   tl.Quantity,
				Proceeds:   tl.Proceeds,
				CostBasis:  tl.CostBasis,
				GainLoss:   tl.GainLoss,
				Term:       tl.Term,
			})
		}
	}
	sort.SliceStable(s.Rows, func(i, j int) bool {
		return s.Rows[i].Date.Before(s.Rows[j].Date)
	})
	return s
}
