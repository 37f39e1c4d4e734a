// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package taxlot

// RecognizeIncome turns every not yet recognized income event into an income
// line and a lot at fair value. It must run before FinalizeOrdering so the new
// lots take part in the FIFO sort. Calling it again only handles events added
// since the previous call.
func (l *AssetLedger) RecognizeIncome() ([]IncomeLine, error) {
	if l.finalized {
		return nil, ErrLedgerSealed
	}
	var lines []IncomeLine
	for _, ev := range l.income[l.recognized:] {
		lines = append(lines, IncomeLine{
			Asset:            l.asset,
			ReceivedAt:       ev.ReceivedAt,
			Quantity:         ev.Quantity,
			FairValuePerUnit: ev.FairValuePerUnit,
			TaxableAmount:    cents(ev.Quantity.Mul(ev.FairValuePerUnit)),
		})
		lot := Lot{
			Asset:      l.asset,
			AcquiredAt: ev.ReceivedAt,
			Quantity:   ev.Quantity,
			UnitCost:   ev.FairValuePerUnit,
			Fee:        ev.Fee,
		}
		if err := l.AddLot(lot); err != nil {
			return nil, err
		}
		l.recognized++
	}
	return lines, nil
}
