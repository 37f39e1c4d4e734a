// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package taxlot

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// AssetLedger holds the open lots, disposals and income events of one asset.
//
// A ledger goes through two phases. While ingesting, AddLot, AddDisposal and
// AddIncome append events. RecognizeIncome then turns income into lots and
// FinalizeOrdering seals the ledger, after which only Match may mutate it, and
// only by shrinking or removing lots. A ledger is not safe for concurrent use;
// the goroutine settling it owns it exclusively.
type AssetLedger struct {
	asset      string
	lots       []Lot
	disposals  []Disposal
	income     []IncomeEvent
	recognized int // income[:recognized] already turned into lots
	nextSeq    int
	finalized  bool
	matched    bool
	logger     *log.Logger

	// consumed tracks partially matched lots by Seq.
	consumed map[int]*lotUsage
}

// lotUsage is the exact cost matched so far against one lot and the rounded
// basis already emitted for it.
type lotUsage struct {
	exact   decimal.Decimal
	emitted decimal.Decimal
}

func NewAssetLedger(asset string) *AssetLedger {
	return &AssetLedger{asset: NormalizeAsset(asset)}
}

// NormalizeAsset returns the canonical ticker form: trimmed, upper case.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func (l *AssetLedger) Asset() string { return l.asset }

func (l *AssetLedger) checkOpen(asset string, qty decimal.Decimal) error {
	if l.finalized {
		return ErrLedgerSealed
	}
	if asset != "" && NormalizeAsset(asset) != l.asset {
		return fmt.Errorf("%w: %s into %s", ErrAssetMismatch, asset, l.asset)
	}
	if qty.Sign() <= 0 {
		return fmt.Errorf("%w: %s %s", ErrNonPositive, l.asset, qty.String())
	}
	return nil
}

// AddLot records an acquisition.
func (l *AssetLedger) AddLot(lot Lot) error {
	if err := l.checkOpen(lot.Asset, lot.Quantity); err != nil {
		return err
	}
	lot.Asset = l.asset
	lot.Seq = l.nextSeq
	l.nextSeq++
	l.lots = append(l.lots, lot)
	return nil
}

func (l *AssetLedger) AddDisposal(d Disposal) error {
	if err := l.checkOpen(d.Asset, d.Quantity); err != nil {
		return err
	}
	d.Asset = l.asset
	l.disposals = append(l.disposals, d)
	return nil
}

func (l *AssetLedger) AddIncome(ev IncomeEvent) error {
	if err := l.checkOpen(ev.Asset, ev.Quantity); err != nil {
		return err
	}
	ev.Asset = l.asset
	l.income = append(l.income, ev)
	return nil
}

// FinalizeOrdering sorts lots and disposals oldest first and seals the
// ledger. Lots with equal timestamps are ordered by Seq, disposals by
// insertion order.
func (l *AssetLedger) FinalizeOrdering() error {
	if l.finalized {
		return nil
	}
	if l.recognized != len(l.income) {
		return fmt.Errorf("%w: %s has %d", ErrPendingIncome, l.asset, len(l.income)-l.recognized)
	}
	sort.Slice(l.lots, func(i, j int) bool {
		a, b := l.lots[i], l.lots[j]
		if !a.AcquiredAt.Equal(b.AcquiredAt) {
			return a.AcquiredAt.Before(b.AcquiredAt)
		}
		return a.Seq < b.Seq
	})
	sort.SliceStable(l.disposals, func(i, j int) bool {
		return l.disposals[i].DisposedAt.Before(l.disposals[j].DisposedAt)
	})
	l.finalized = true
	return nil
}

// OpenLots returns a copy of the open lot queue, oldest first once finalized.
func (l *AssetLedger) OpenLots() []Lot {
	return append([]Lot(nil), l.lots...)
}

// OpenQuantity is the sum of every open lot's quantity.
func (l *AssetLedger) OpenQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		total = total.Add(lot.Quantity)
	}
	return total
}
