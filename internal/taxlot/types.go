// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

// Package taxlot keeps per-asset FIFO lot ledgers and turns disposals and
// reward income into realized tax lines.
package taxlot

import (
	"time"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits of the reporting currency.
// Amounts are rounded to it when a line is emitted, never before.
const Places = 2

// LongTermDays is the minimum number of whole calendar days a lot must be held
// for its disposal to count as long-term.
const LongTermDays = 366

type Term string

const (
	ShortTerm Term = "short"
	LongTerm  Term = "long"
)

// Lot is an open acquisition. Quantity and Fee shrink as the lot is consumed.
type Lot struct {
	Asset      string
	AcquiredAt time.Time
	Quantity   decimal.Decimal // open quantity, always positive
	UnitCost   decimal.Decimal // reporting currency per unit
	Fee        decimal.Decimal // fee still allocated to the open quantity
	Seq        int             // insertion order within the ledger, breaks timestamp ties
}

// Cost returns quantity * unit cost + fee for the open part of the lot.
func (l Lot) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost).Add(l.Fee)
}

type Disposal struct {
	Asset      string
	DisposedAt time.Time
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	Fee        decimal.Decimal
}

// NewDisposalFromTotal builds a disposal whose unit price is derived from the
// gross amount received for the whole quantity.
func NewDisposalFromTotal(asset string, at time.Time, qty, total, fee decimal.Decimal) Disposal {
	price := decimal.Zero
	if !qty.IsZero() {
		price = total.Div(qty)
	}
	return Disposal{Asset: asset, DisposedAt: at, Quantity: qty, UnitPrice: price, Fee: fee}
}

type IncomeEvent struct {
	Asset            string
	ReceivedAt       time.Time
	Quantity         decimal.Decimal
	FairValuePerUnit decimal.Decimal
	Fee              decimal.Decimal
}

// IncomeLine is ordinary income recognized when a reward is received.
type IncomeLine struct {
	Asset            string
	ReceivedAt       time.Time
	Quantity         decimal.Decimal
	FairValuePerUnit decimal.Decimal
	TaxableAmount    decimal.Decimal
}

// TaxLine is one disposal matched against one lot. A disposal spanning several
// lots yields several lines.
type TaxLine struct {
	Asset      string
	AcquiredAt time.Time
	DisposedAt time.Time
	Quantity   decimal.Decimal
	Proceeds   decimal.Decimal
	CostBasis  decimal.Decimal
	GainLoss   decimal.Decimal
	Term       Term
}

// HoldingDays counts whole calendar days between two instants, both read in
// the location of the acquisition timestamp.
func HoldingDays(acquired, disposed time.Time) int {
	loc := acquired.Location()
	a := acquired.In(loc)
	d := disposed.In(loc)
	start := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

func termFor(acquired, disposed time.Time) Term {
	if HoldingDays(acquired, disposed) >= LongTermDays {
		return LongTerm
	}
	return ShortTerm
}

func cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}
