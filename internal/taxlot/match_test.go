// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package taxlot

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var day0 = time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustSettle(t *testing.T, l *AssetLedger) []TaxLine {
	t.Helper()
	if _, err := l.RecognizeIncome(); err != nil {
		t.Fatalf("RecognizeIncome: %v", err)
	}
	if err := l.FinalizeOrdering(); err != nil {
		t.Fatalf("FinalizeOrdering: %v", err)
	}
	lines, err := l.Match()
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	return lines
}

func TestMatchTwoLotsScenario(t *testing.T) {
	l := NewAssetLedger("btc")
	l.AddLot(Lot{AcquiredAt: day(0), Quantity: dec("1"), UnitCost: dec("10000"), Fee: dec("10")})
	l.AddLot(Lot{AcquiredAt: day(10), Quantity: dec("1"), UnitCost: dec("12000"), Fee: dec("0")})
	l.AddDisposal(NewDisposalFromTotal("BTC", day(400), dec("1.5"), dec("20000"), dec("15")))

	got := mustSettle(t, l)
	want := []TaxLine{
		{
			Asset:      "BTC",
			AcquiredAt: day(0),
			DisposedAt: day(400),
			Quantity:   dec("1"),
			Proceeds:   dec("13323.33"),
			CostBasis:  dec("10010"),
			GainLoss:   dec("3313.33"),
			Term:       LongTerm,
		},
		{
			Asset:      "BTC",
			AcquiredAt: day(10),
			DisposedAt: day(400),
			Quantity:   dec("0.5"),
			Proceeds:   dec("6661.67"),
			CostBasis:  dec("6000"),
			GainLoss:   dec("661.67"),
			Term:       LongTerm,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tax lines mismatch (-want +got):\n%s", diff)
	}

	wantOpen := []Lot{
		{Asset: "BTC", AcquiredAt: day(10), Quantity: dec("0.5"), UnitCost: dec("12000"), Fee: dec("0"), Seq: 1},
	}
	if diff := cmp.Diff(wantOpen, l.OpenLots()); diff != "" {
		t.Errorf("open lots mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchUnitPrice(t *testing.T) {
	l := NewAssetLedger("ETH")
	l.AddLot(Lot{AcquiredAt: day(0), Quantity: dec("2"), UnitCost: dec("100"), Fee: dec("2")})
	l.AddDisposal(Disposal{DisposedAt: day(30), Quantity: dec("1"), UnitPrice: dec("150"), Fee: dec("1.50")})

	got := mustSettle(t, l)
	want := []TaxLine{{
		Asset:      "ETH",
		AcquiredAt: day(0),
		DisposedAt: day(30),
		Quantity:   dec("1"),
		Proceeds:   dec("148.50"),
		CostBasis:  dec("101"),
		GainLoss:   dec("47.50"),
		Term:       ShortTerm,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tax lines mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchEmptyLedgerInsufficientLots(t *testing.T) {
	l := NewAssetLedger("DOGE")
	l.AddDisposal(Disposal{DisposedAt: day(5), Quantity: dec("3"), UnitPrice: dec("1"), Fee: dec("0")})
	if err := l.FinalizeOrdering(); err != nil {
		t.Fatal(err)
	}
	lines, err := l.Match()
	if len(lines) != 0 {
		t.Errorf("expected no tax lines, got %d", len(lines))
	}
	var ie *InsufficientLotsError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InsufficientLotsError, got %v", err)
	}
	if ie.Asset != "DOGE" || !ie.Unmatched.Equal(dec("3")) || !ie.Requested.Equal(dec("3")) {
		t.Errorf("unexpected error details: %+v", ie)
	}
	if !ie.DisposedAt.Equal(day(5)) {
		t.Errorf("expected disposal date %s, got %s", day(5), ie.DisposedAt)
	}
}

func TestMatchOversellKeepsEarlierLinesAndLots(t *testing.T) {
	l := NewAssetLedger("SOL")
	l.AddLot(Lot{AcquiredAt: day(0), Quantity: dec("1"), UnitCost: dec("20"), Fee: dec("0")})
	l.AddDisposal(Disposal{DisposedAt: day(1), Quantity: dec("0.5"), UnitPrice: dec("30"), Fee: dec("0")})
	l.AddDisposal(Disposal{DisposedAt: day(2), Quantity: dec("1"), UnitPrice: dec("30"), Fee: dec("0")})
	l.AddDisposal(Disposal{DisposedAt: day(3), Quantity: dec("0.1"), UnitPrice: dec("30"), Fee: dec("0")})
	if err := l.FinalizeOrdering(); err != nil {
		t.Fatal(err)
	}

	lines, err := l.Match()
	var ie *InsufficientLotsError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InsufficientLotsError, got %v", err)
	}
	if !ie.Unmatched.Equal(dec("0.5")) {
		t.Errorf("expected unmatched 0.5, got %s", ie.Unmatched)
	}
	if len(lines) != 1 || !lines[0].Quantity.Equal(dec("0.5")) {
		t.Fatalf("expected the first disposal's single line, got %+v", lines)
	}
	if q := l.OpenQuantity(); !q.Equal(dec("0.5")) {
		t.Errorf("failing disposal must not consume lots, open quantity %s", q)
	}

	again, err := l.Match()
	if !errors.Is(err, ErrAlreadyMatched) || again != nil {
		t.Errorf("expected ErrAlreadyMatched from second Match, got %v, %v", again, err)
	}
}

func TestMatchQuantityConservation(t *testing.T) {
	l := NewAssetLedger("BTC")
	l.AddLot(Lot{AcquiredAt: day(3), Quantity: dec("0.7"), UnitCost: dec("9000"), Fee: dec("3")})
	l.AddLot(Lot{AcquiredAt: day(1), Quantity: dec("1.25"), UnitCost: dec("8000"), Fee: dec("7")})
	l.AddLot(Lot{AcquiredAt: day(9), Quantity: dec("2"), UnitCost: dec("9500"), Fee: dec("1")})
	l.AddIncome(IncomeEvent{ReceivedAt: day(4), Quantity: dec("0.01"), FairValuePerUnit: dec("9100")})

	disposed := []string{"0.3", "1.1", "0.66", "1.2"}
	sum := decimal.Zero
	for i, q := range disposed {
		l.AddDisposal(Disposal{DisposedAt: day(20 + i), Quantity: dec(q), UnitPrice: dec("10000"), Fee: dec("1")})
		sum = sum.Add(dec(q))
	}

	lines := mustSettle(t, l)
	matched := decimal.Zero
	for _, tl := range lines {
		matched = matched.Add(tl.Quantity)
	}
	if !matched.Equal(sum) {
		t.Errorf("matched %s, disposed %s", matched, sum)
	}
	total := dec("0.7").Add(dec("1.25")).Add(dec("2")).Add(dec("0.01"))
	if left := l.OpenQuantity(); !left.Add(matched).Equal(total) {
		t.Errorf("open %s + matched %s != acquired %s", left, matched, total)
	}
}

func TestMatchValueConservation(t *testing.T) {
	l := NewAssetLedger("ADA")
	l.AddLot(Lot{AcquiredAt: day(0), Quantity: dec("2"), UnitCost: dec("100"), Fee: dec("4")})
	l.AddLot(Lot{AcquiredAt: day(5), Quantity: dec("3"), UnitCost: dec("200"), Fee: dec("6")})
	l.AddDisposal(Disposal{DisposedAt: day(10), Quantity: dec("1"), UnitPrice: dec("300"), Fee: dec("0")})
	l.AddDisposal(Disposal{DisposedAt: day(11), Quantity: dec("2.5"), UnitPrice: dec("300"), Fee: dec("0")})

	lines := mustSettle(t, l)
	basis := decimal.Zero
	for _, tl := range lines {
		basis = basis.Add(tl.CostBasis)
	}
	for _, lot := range l.OpenLots() {
		basis = basis.Add(lot.Cost())
	}
	if want := dec("810"); !basis.Equal(want) {
		t.Errorf("cost basis %s, want %s", basis, want)
	}
}

func sumBasis(lines []TaxLine) (decimal.Decimal, []string) {
	sum := decimal.Zero
	var each []string
	for _, tl := range lines {
		sum = sum.Add(tl.CostBasis)
		each = append(each, tl.CostBasis.StringFixed(Places))
	}
	return sum, each
}

func TestMatchLotFeeSurvivesRounding(t *testing.T) {
	l := NewAssetLedger("LTC")
	l.AddLot(Lot{AcquiredAt: day(0), Quantity: dec("3"), UnitCost: dec("1"), Fee: dec("0.01")})
	for i := 1; i <= 3; i++ {
		l.AddDisposal(Disposal{DisposedAt: day(i), Quantity: dec("1"), UnitPrice: dec("2"), Fee: dec("0")})
	}

	lines := mustSettle(t, l)
	sum, each := sumBasis(lines)
	if diff := cmp.Diff([]string{"1.00", "1.01", "1.00"}, each); diff != "" {
		t.Errorf("cost basis per line mismatch (-want +got):\n%s", diff)
	}
	if !sum.Equal(dec("3.01")) {
		t.Errorf("cost basis %s, want 3.01", sum)
	}
	if len(l.OpenLots()) != 0 {
		t.Errorf("expected the lot to be fully consumed")
	}
}

func TestMatchDisposalFeeSurvivesRounding(t *testing.T) {
	l := NewAssetLedger("XRP")
	for i := 0; i < 3; i++ {
		l.AddLot(Lot{AcquiredAt: day(i), Quantity: dec("1"), UnitCost: dec("1"), Fee: dec("0")})
	}
	l.AddDisposal(Disposal{DisposedAt: day(10), Quantity: dec("3"), UnitPrice: dec("2"), Fee: dec("0.01")})

	lines := mustSettle(t, l)
	proceeds := decimal.Zero
	gain := decimal.Zero
	var each []string
	for _, tl := range lines {
		proceeds = proceeds.Add(tl.Proceeds)
		gain = gain.Add(tl.GainLoss)
		each = append(each, tl.Proceeds.StringFixed(Places))
	}
	if diff := cmp.Diff([]string{"2.00", "1.99", "2.00"}, each); diff != "" {
		t.Errorf("proceeds per line mismatch (-want +got):\n%s", diff)
	}
	if !proceeds.Equal(dec("5.99")) {
		t.Errorf("proceeds %s, want 5.99", proceeds)
	}
	if !gain.Equal(dec("2.99")) {
		t.Errorf("gain %s, want 2.99", gain)
	}
}

func TestMatchValueConservationUnevenSplits(t *testing.T) {
	l := NewAssetLedger("ETH")
	l.AddLot(Lot{AcquiredAt: day(0), Quantity: dec("0.7"), UnitCost: dec("1234.57"), Fee: dec("1.13")})
	l.AddLot(Lot{AcquiredAt: day(1), Quantity: dec("1.3"), UnitCost: dec("987.65"), Fee: dec("0.07")})
	l.AddDisposal(Disposal{DisposedAt: day(5), Quantity: dec("0.3"), UnitPrice: dec("1500.01"), Fee: dec("0.11")})
	l.AddDisposal(Disposal{DisposedAt: day(6), Quantity: dec("1.7"), UnitPrice: dec("1499.99"), Fee: dec("0.23")})

	lines := mustSettle(t, l)
	basis, _ := sumBasis(lines)
	// each fully consumed lot contributes its own rounded cost: 865.33 + 1284.02
	cost := dec("0.7").Mul(dec("1234.57")).Add(dec("1.13")).Round(Places).
		Add(dec("1.3").Mul(dec("987.65")).Add(dec("0.07")).Round(Places))
	if !basis.Equal(cost) || !basis.Equal(dec("2149.35")) {
		t.Errorf("cost basis %s, want %s", basis, cost)
	}
	proceeds := decimal.Zero
	for _, tl := range lines {
		proceeds = proceeds.Add(tl.Proceeds)
	}
	net := dec("0.3").Mul(dec("1500.01")).Sub(dec("0.11")).Round(Places).
		Add(dec("1.7").Mul(dec("1499.99")).Sub(dec("0.23")).Round(Places))
	if !proceeds.Equal(net) {
		t.Errorf("proceeds %s, want %s", proceeds, net)
	}
}

func TestMatchEqualTimestampsUseSeq(t *testing.T) {
	l := NewAssetLedger("BTC")
	l.AddLot(Lot{AcquiredAt: day(2), Quantity: dec("1"), UnitCost: dec("7"), Fee: dec("0")})
	l.AddLot(Lot{AcquiredAt: day(2), Quantity: dec("1"), UnitCost: dec("9"), Fee: dec("0")})
	if _, err := l.RecognizeIncome(); err != nil {
		t.Fatal(err)
	}
	if err := l.FinalizeOrdering(); err != nil {
		t.Fatal(err)
	}
	open := l.OpenLots()
	if open[0].Seq != 0 || !open[0].UnitCost.Equal(dec("7")) || open[1].Seq != 1 {
		t.Errorf("unexpected lot order: %+v", open)
	}
}

func TestMatchFIFOOrdering(t *testing.T) {
	l := NewAssetLedger("BTC")
	// Inserted newest first; the tie at day(2) keeps insertion order.
	l.AddLot(Lot{AcquiredAt: day(8), Quantity: dec("1"), UnitCost: dec("3"), Fee: dec("0")})
	l.AddLot(Lot{AcquiredAt: day(2), Quantity: dec("1"), UnitCost: dec("1"), Fee: dec("0")})
	l.AddLot(Lot{AcquiredAt: day(2), Quantity: dec("1"), UnitCost: dec("2"), Fee: dec("0")})
	l.AddDisposal(Disposal{DisposedAt: day(20), Quantity: dec("0.5"), UnitPrice: dec("5"), Fee: dec("0")})
	l.AddDisposal(Disposal{DisposedAt: day(15), Quantity: dec("2"), UnitPrice: dec("5"), Fee: dec("0")})

	lines := mustSettle(t, l)
	var got []string
	for _, tl := range lines {
		got = append(got, tl.DisposedAt.Format("01-02")+"/"+tl.CostBasis.String())
	}
	want := []string{"01-16/1", "01-16/2", "01-21/1.5"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("match order mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchSplitKeepsDateAndProratedFee(t *testing.T) {
	l := NewAssetLedger("BTC")
	l.AddLot(Lot{AcquiredAt: day(0), Quantity: dec("4"), UnitCost: dec("10"), Fee: dec("8")})
	l.AddDisposal(Disposal{DisposedAt: day(1), Quantity: dec("1"), UnitPrice: dec("10"), Fee: dec("0")})

	lines := mustSettle(t, l)
	if !lines[0].CostBasis.Equal(dec("12")) {
		t.Errorf("expected cost basis 12, got %s", lines[0].CostBasis)
	}
	open := l.OpenLots()
	if len(open) != 1 {
		t.Fatalf("expected one open lot, got %d", len(open))
	}
	if !open[0].AcquiredAt.Equal(day(0)) {
		t.Errorf("remainder lost acquisition date: %s", open[0].AcquiredAt)
	}
	// original fee * remaining / original quantity
	if want := dec("8").Mul(dec("3")).Div(dec("4")); !open[0].Fee.Equal(want) {
		t.Errorf("remainder fee %s, want %s", open[0].Fee, want)
	}
}

func TestMatchDisposalFeeSpreadAcrossLots(t *testing.T) {
	l := NewAssetLedger("XRP")
	for i := 0; i < 3; i++ {
		l.AddLot(Lot{AcquiredAt: day(i), Quantity: dec("1"), UnitCost: dec("1"), Fee: dec("0")})
	}
	l.AddDisposal(Disposal{DisposedAt: day(10), Quantity: dec("3"), UnitPrice: dec("2"), Fee: dec("0.03")})

	lines := mustSettle(t, l)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	proceeds := decimal.Zero
	for _, tl := range lines {
		if !tl.Proceeds.Equal(dec("1.99")) {
			t.Errorf("line proceeds %s, want 1.99", tl.Proceeds)
		}
		proceeds = proceeds.Add(tl.Proceeds)
	}
	if !proceeds.Equal(dec("5.97")) {
		t.Errorf("proceeds %s, want 5.97", proceeds)
	}
}

func TestTermBoundary(t *testing.T) {
	for _, tc := range []struct {
		days int
		want Term
	}{
		{0, ShortTerm},
		{365, ShortTerm},
		{366, LongTerm},
		{700, LongTerm},
	} {
		l := NewAssetLedger("BTC")
		l.AddLot(Lot{AcquiredAt: day(0), Quantity: dec("1"), UnitCost: dec("1"), Fee: dec("0")})
		l.AddDisposal(Disposal{DisposedAt: day(tc.days), Quantity: dec("1"), UnitPrice: dec("1"), Fee: dec("0")})
		lines := mustSettle(t, l)
		if lines[0].Term != tc.want {
			t.Errorf("%d days: got %s, want %s", tc.days, lines[0].Term, tc.want)
		}
	}
}

func TestHoldingDaysIgnoresTimeOfDay(t *testing.T) {
	pacific := time.FixedZone("PST", -8*3600)
	acquired := time.Date(2021, 3, 1, 23, 59, 0, 0, pacific)
	disposed := time.Date(2022, 3, 3, 0, 1, 0, 0, pacific)
	if got := HoldingDays(acquired, disposed); got != 367 {
		t.Errorf("expected 367 days, got %d", got)
	}
	// Same instant seen from UTC is read in the acquisition zone.
	if got := HoldingDays(acquired, disposed.UTC()); got != 367 {
		t.Errorf("expected 367 days across zones, got %d", got)
	}
}
