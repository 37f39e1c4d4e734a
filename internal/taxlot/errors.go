// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package taxlot

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrLedgerSealed is returned when events are added after ordering was finalized.
	ErrLedgerSealed = errors.New("taxlot: ledger already finalized")
	// ErrPendingIncome is returned when ordering is finalized before income recognition.
	ErrPendingIncome = errors.New("taxlot: income events not yet recognized")
	// ErrNotFinalized is returned when matching runs on an unordered ledger.
	ErrNotFinalized = errors.New("taxlot: ledger ordering not finalized")

	// ErrAlreadyMatched is returned by a second Match on the same ledger.
	ErrAlreadyMatched = errors.New("taxlot: ledger already matched")

	ErrNonPositive   = errors.New("taxlot: quantity must be positive")
	ErrAssetMismatch = errors.New("taxlot: event asset does not match ledger")
)

// InsufficientLotsError reports a disposal that exceeds every open lot of its asset.
type InsufficientLotsError struct {
	Asset      string
	DisposedAt time.Time
	Requested  decimal.Decimal
	Unmatched  decimal.Decimal
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("taxlot: insufficient lots for %s disposal on %s: requested %s, unmatched %s",
		e.Asset, e.DisposedAt.Format(time.RFC3339), e.Requested.String(), e.Unmatched.String())
}
