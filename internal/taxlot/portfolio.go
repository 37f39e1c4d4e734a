// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package taxlot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Workers caps how many assets are settled concurrently. Zero or less
	// means no limit.
	Workers int
	// Logger receives verbose ingestion and matching logs. Nil is silent.
	Logger *log.Logger
}

// Portfolio owns one AssetLedger per asset ticker.
type Portfolio struct {
	ledgers map[string]*AssetLedger
	opts    Options
	settled bool
}

func NewPortfolio(opts Options) *Portfolio {
	return &Portfolio{
		ledgers: make(map[string]*AssetLedger),
		opts:    opts,
	}
}

// Ledger returns the ledger of asset, creating it on first use.
func (p *Portfolio) Ledger(asset string) *AssetLedger {
	key := NormalizeAsset(asset)
	l, ok := p.ledgers[key]
	if !ok {
		l = NewAssetLedger(key)
		l.SetLogger(p.opts.Logger)
		p.ledgers[key] = l
	}
	return l
}

// Assets lists the tickers held by the portfolio in lexical order.
func (p *Portfolio) Assets() []string {
	assets := make([]string, 0, len(p.ledgers))
	for a := range p.ledgers {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

func (p *Portfolio) AddLot(lot Lot) error {
	if p.settled {
		return ErrLedgerSealed
	}
	return p.Ledger(lot.Asset).AddLot(lot)
}

func (p *Portfolio) AddDisposal(d Disposal) error {
	if p.settled {
		return ErrLedgerSealed
	}
	return p.Ledger(d.Asset).AddDisposal(d)
}

func (p *Portfolio) AddIncome(ev IncomeEvent) error {
	if p.settled {
		return ErrLedgerSealed
	}
	return p.Ledger(ev.Asset).AddIncome(ev)
}

// AssetResult is the outcome of settling one asset. When Err is set the
// asset's tax lines are incomplete and must not be reported as final; its
// income lines are complete, as they are recognized before matching.
type AssetResult struct {
	Asset       string
	IncomeLines []IncomeLine
	TaxLines    []TaxLine
	OpenLots    []Lot
	Err         error
}

// Settle recognizes income, orders and matches every asset. Assets are
// independent and settle in parallel. A failing asset never affects the
// others: its error is kept in its AssetResult and joined into the returned
// error. Results are ordered by asset ticker.
func (p *Portfolio) Settle(ctx context.Context) ([]AssetResult, error) {
	if p.settled {
		return nil, ErrLedgerSealed
	}
	p.settled = true

	assets := p.Assets()
	results := make([]AssetResult, len(assets))
	g, ctx := errgroup.WithContext(ctx)
	if p.opts.Workers > 0 {
		g.SetLimit(p.opts.Workers)
	}
	for i, asset := range assets {
		l := p.ledgers[asset]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = settleLedger(l)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			if p.opts.Logger != nil {
				p.opts.Logger.Printf("WARNING: settlement failed for %s: %v", r.Asset, r.Err)
			}
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func settleLedger(l *AssetLedger) AssetResult {
	res := AssetResult{Asset: l.Asset()}
	l.logf("SETTLE: asset=%s lots=%d disposals=%d income=%d", l.asset, len(l.lots), len(l.disposals), len(l.income))

	income, err := l.RecognizeIncome()
	if err != nil {
		res.Err = fmt.Errorf("recognize income for %s: %w", l.asset, err)
		return res
	}
	res.IncomeLines = income
	for _, in := range income {
		l.logf("INCOME: asset=%s amt=%s value=%s date=%s", l.asset, in.Quantity.String(),
			in.TaxableAmount.StringFixed(Places), in.ReceivedAt.Format("2006-01-02"))
	}
	if err := l.FinalizeOrdering(); err != nil {
		res.Err = fmt.Errorf("order %s: %w", l.asset, err)
		return res
	}
	res.TaxLines, res.Err = l.Match()
	res.OpenLots = l.OpenLots()
	return res
}
