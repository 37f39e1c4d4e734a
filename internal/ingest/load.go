// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package ingest

import (
	"fmt"

	"cointax/internal/taxlot"
)

// Load routes events into the portfolio's ledgers: buys become lots, sells
// disposals and earn rewards income events. It stops at the first event the
// portfolio rejects.
func Load(p *taxlot.Portfolio, events []Event) error {
	for _, ev := range events {
		var err error
		switch ev.Kind {
		case Buy:
			err = p.AddLot(taxlot.Lot{
				Asset:      ev.Asset,
				AcquiredAt: ev.At,
				Quantity:   ev.Quantity,
				UnitCost:   ev.Price,
				Fee:        ev.Fee,
			})
		case Sell:
			err = p.AddDisposal(taxlot.Disposal{
				Asset:      ev.Asset,
				DisposedAt: ev.At,
				Quantity:   ev.Quantity,
				UnitPrice:  ev.Price,
				Fee:        ev.Fee,
			})
		case Earn:
			err = p.AddIncome(taxlot.IncomeEvent{
				Asset:            ev.Asset,
				ReceivedAt:       ev.At,
				Quantity:         ev.Quantity,
				FairValuePerUnit: ev.Price,
				Fee:              ev.Fee,
			})
		default:
			err = &UnrecognizedEventTypeError{Source: ev.Source, Line: ev.Line, Type: string(ev.Kind)}
		}
		if err != nil {
			return fmt.Errorf("ingest: load %s:%d: %w", ev.Source, ev.Line, err)
		}
	}
	return nil
}
