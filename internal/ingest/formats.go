// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package ingest

import (
	"strings"

	"github.com/shopspring/decimal"

	"cointax/internal/taxlot"
)

// binanceBNBFeeRate is the discounted trading fee charged when fees are paid
// in BNB (0.075% of the trade value).
var binanceBNBFeeRate = decimal.RequireFromString("0.00075")

// Coinbase report:
// Timestamp,Transaction Type,Asset,Quantity Transacted,Spot Price at Transaction,Subtotal,Total,Fees,Notes
func mapCoinbase(p *Parser, rec []string, src string, line int) (Event, bool, error) {
	typ, err := field(rec, 1, "type", src, line)
	if err != nil {
		return Event{}, false, err
	}
	var kind Kind
	switch strings.ToLower(typ) {
	case "send":
		// outgoing transfers are not taxable events
		return Event{}, false, nil
	case "buy":
		kind = Buy
	case "sell":
		kind = Sell
	case "coinbase earn":
		kind = Earn
	default:
		return Event{}, false, &UnrecognizedEventTypeError{Source: src, Line: line, Type: typ}
	}
	asset, err := field(rec, 2, "asset", src, line)
	if err != nil {
		return Event{}, false, err
	}
	ev := Event{Kind: kind, Asset: taxlot.NormalizeAsset(asset), FeeCurrency: "USD", Source: src, Line: line}
	if ev.At, err = p.parseTime(rec, 0, "2006-01-02T15:04:05Z", src, line); err != nil {
		return Event{}, false, err
	}
	if ev.Quantity, err = parseQuantity(rec, 3, src, line); err != nil {
		return Event{}, false, err
	}
	if ev.Price, err = parseAmount(rec, 4, "price", src, line); err != nil {
		return Event{}, false, err
	}
	if ev.Fee, err = parseOptionalAmount(rec, 7, "fee", src, line); err != nil {
		return Event{}, false, err
	}
	ev.OriginalFee = ev.Fee
	return ev, true, nil
}

// Coinbase Pro fills:
// portfolio,trade id,product,side,created at,size,size unit,price,fee,total,price/fee/total unit
func mapCoinbasePro(p *Parser, rec []string, src string, line int) (Event, bool, error) {
	side, err := field(rec, 3, "side", src, line)
	if err != nil {
		return Event{}, false, err
	}
	var kind Kind
	switch strings.ToLower(side) {
	case "buy":
		kind = Buy
	case "sell":
		kind = Sell
	default:
		return Event{}, false, &UnrecognizedEventTypeError{Source: src, Line: line, Type: side}
	}
	product, err := field(rec, 2, "product", src, line)
	if err != nil {
		return Event{}, false, err
	}
	asset, _, _ := strings.Cut(product, "-")
	ev := Event{Kind: kind, Asset: taxlot.NormalizeAsset(asset), FeeCurrency: "USD", Source: src, Line: line}

	created, err := field(rec, 4, "timestamp", src, line)
	if err != nil {
		return Event{}, false, err
	}
	// 2021-03-04T05:06:07.890Z: fractional seconds are dropped
	created, _, _ = strings.Cut(created, ".")
	created = strings.TrimSuffix(created, "Z")
	if ev.At, err = p.parseTimeValue(created, "2006-01-02T15:04:05", src, line); err != nil {
		return Event{}, false, err
	}
	if ev.Quantity, err = parseQuantity(rec, 5, src, line); err != nil {
		return Event{}, false, err
	}
	if ev.Price, err = parseAmount(rec, 7, "price", src, line); err != nil {
		return Event{}, false, err
	}
	if ev.Fee, err = parseOptionalAmount(rec, 8, "fee", src, line); err != nil {
		return Event{}, false, err
	}
	ev.OriginalFee = ev.Fee
	return ev, true, nil
}

// Binance trade history:
// Date(UTC),Pair,Side,Price,Executed,Amount,Fee,Fee Coin
func mapBinance(p *Parser, rec []string, src string, line int) (Event, bool, error) {
	side, err := field(rec, 2, "side", src, line)
	if err != nil {
		return Event{}, false, err
	}
	var kind Kind
	switch strings.ToLower(side) {
	case "buy":
		kind = Buy
	case "sell":
		kind = Sell
	default:
		return Event{}, false, &UnrecognizedEventTypeError{Source: src, Line: line, Type: side}
	}
	pair, err := field(rec, 1, "pair", src, line)
	if err != nil {
		return Event{}, false, err
	}
	if len(pair) <= 3 {
		return Event{}, false, &MalformedRecordError{Source: src, Line: line, Field: "pair", Value: pair, Err: errMissingField}
	}
	// pairs are quoted in USD: BTCUSD -> BTC
	ev := Event{Kind: kind, Asset: taxlot.NormalizeAsset(pair[:len(pair)-3]), Source: src, Line: line}
	if ev.At, err = p.parseTime(rec, 0, "2006-01-02 15:04:05", src, line); err != nil {
		return Event{}, false, err
	}
	if ev.Price, err = parseAmount(rec, 3, "price", src, line); err != nil {
		return Event{}, false, err
	}
	if ev.Quantity, err = parseQuantity(rec, 4, src, line); err != nil {
		return Event{}, false, err
	}
	if ev.OriginalFee, err = parseOptionalAmount(rec, 6, "fee", src, line); err != nil {
		return Event{}, false, err
	}
	if len(rec) > 7 {
		ev.FeeCurrency = strings.ToUpper(strings.TrimSpace(rec[7]))
	}
	ev.Fee = binanceFee(ev)
	return ev, true, nil
}

// binanceFee converts a Binance fee into the reporting currency. BNB fees are
// recomputed from the discounted rate, USD fees are kept, and fees paid in the
// traded coin are valued at the trade price.
func binanceFee(ev Event) decimal.Decimal {
	switch ev.FeeCurrency {
	case "BNB":
		return ev.Quantity.Mul(ev.Price).Mul(binanceBNBFeeRate)
	case "USD", "":
		return ev.OriginalFee
	default:
		return ev.OriginalFee.Mul(ev.Price)
	}
}
