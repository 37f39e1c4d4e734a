// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package taxlot

import (
	"log"

	"github.com/shopspring/decimal"
)

// SetLogger enables verbose matching logs. A nil logger silences them.
func (l *AssetLedger) SetLogger(lg *log.Logger) { l.logger = lg }

func (l *AssetLedger) logf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
}

// Match consumes every disposal against the open lots, oldest lot first, and
// returns the resulting tax lines in disposal order.
//
// If a disposal exceeds the open quantity, Match stops with an
// *InsufficientLotsError. Lines of the disposals settled before it are
// returned alongside the error; the failing disposal emits nothing and leaves
// the lot queue untouched. Match runs at most once per ledger; a second call
// returns ErrAlreadyMatched.
//
// Amounts are rounded cumulatively: each line carries the rounded running
// total of its lot (or disposal) minus what earlier lines already reported,
// so a fully consumed lot sums to its rounded cost and a disposal to its
// rounded net proceeds.
func (l *AssetLedger) Match() ([]TaxLine, error) {
	if !l.finalized {
		return nil, ErrNotFinalized
	}
	if l.matched {
		return nil, ErrAlreadyMatched
	}
	l.matched = true

	var lines []TaxLine
	for _, d := range l.disposals {
		got, err := l.matchDisposal(d)
		if err != nil {
			return lines, err
		}
		lines = append(lines, got...)
	}
	return lines, nil
}

func (l *AssetLedger) matchDisposal(d Disposal) ([]TaxLine, error) {
	if open := l.OpenQuantity(); open.LessThan(d.Quantity) {
		return nil, &InsufficientLotsError{
			Asset:      l.asset,
			DisposedAt: d.DisposedAt,
			Requested:  d.Quantity,
			Unmatched:  d.Quantity.Sub(open),
		}
	}
	l.logf("SELL: asset=%s amt=%s price=%s fee=%s date=%s",
		l.asset, d.Quantity.String(), d.UnitPrice.String(), d.Fee.String(), d.DisposedAt.Format("2006-01-02"))

	var lines []TaxLine
	remaining := d.Quantity
	feeLeft := d.Fee
	soldExact, soldEmitted := decimal.Zero, decimal.Zero
	for remaining.Sign() > 0 {
		if len(l.lots) == 0 {
			return nil, &InsufficientLotsError{
				Asset:      l.asset,
				DisposedAt: d.DisposedAt,
				Requested:  d.Quantity,
				Unmatched:  remaining,
			}
		}
		lot := &l.lots[0]
		matched := decimal.Min(remaining, lot.Quantity)

		// The last slice of a lot or disposal takes whatever fee is left so
		// that fees are conserved exactly.
		lotFee := lot.Fee
		if !matched.Equal(lot.Quantity) {
			lotFee = lot.Fee.Mul(matched).Div(lot.Quantity)
		}
		saleFee := feeLeft
		if !matched.Equal(remaining) {
			saleFee = d.Fee.Mul(matched).Div(d.Quantity)
		}

		soldExact = soldExact.Add(matched.Mul(d.UnitPrice).Sub(saleFee))
		proceeds := cents(soldExact).Sub(soldEmitted)
		soldEmitted = soldEmitted.Add(proceeds)

		used := l.usage(lot.Seq)
		used.exact = used.exact.Add(matched.Mul(lot.UnitCost).Add(lotFee))
		basis := cents(used.exact).Sub(used.emitted)
		used.emitted = used.emitted.Add(basis)
		line := TaxLine{
			Asset:      l.asset,
			AcquiredAt: lot.AcquiredAt,
			DisposedAt: d.DisposedAt,
			Quantity:   matched,
			Proceeds:   proceeds,
			CostBasis:  basis,
			GainLoss:   proceeds.Sub(basis),
			Term:       termFor(lot.AcquiredAt, d.DisposedAt),
		}
		lines = append(lines, line)
		l.logf("  Consumed FIFO lot: acquired=%s use=%s unitCost=%s cost=%s proceeds=%s gain=%s days=%d -> %s",
			lot.AcquiredAt.Format("2006-01-02"), matched.String(), lot.UnitCost.String(),
			basis.StringFixed(Places), proceeds.StringFixed(Places), line.GainLoss.StringFixed(Places),
			HoldingDays(lot.AcquiredAt, d.DisposedAt), line.Term)

		lot.Quantity = lot.Quantity.Sub(matched)
		lot.Fee = lot.Fee.Sub(lotFee)
		if lot.Quantity.IsZero() {
			delete(l.consumed, lot.Seq)
			l.lots = l.lots[1:]
		}
		feeLeft = feeLeft.Sub(saleFee)
		remaining = remaining.Sub(matched)
	}
	return lines, nil
}

func (l *AssetLedger) usage(seq int) *lotUsage {
	if l.consumed == nil {
		l.consumed = make(map[int]*lotUsage)
	}
	u, ok := l.consumed[seq]
	if !ok {
		u = &lotUsage{}
		l.consumed[seq] = u
	}
	return u
}
