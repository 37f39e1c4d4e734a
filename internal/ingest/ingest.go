// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

// Package ingest reads exchange CSV exports into canonical buy, sell and
// earn events.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultZone is the reporting time zone timestamps are localized into.
const DefaultZone = "America/Los_Angeles"

type Kind string

const (
	Buy  Kind = "buy"
	Sell Kind = "sell"
	Earn Kind = "earn"
)

// Event is one normalized exchange record. Price and Fee are in the
// reporting currency; the fee as exported is kept in OriginalFee.
type Event struct {
	Kind        Kind
	Asset       string
	At          time.Time
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	FeeCurrency string
	OriginalFee decimal.Decimal
	Source      string
	Line        int
}

type Format string

const (
	Coinbase    Format = "coinbase"
	CoinbasePro Format = "coinbase-pro"
	Binance     Format = "binance"
)

// Batch is the outcome of parsing one file.
type Batch struct {
	Source  string
	Format  Format
	Events  []Event
	Skipped []*MalformedRecordError
}

type Parser struct {
	// Location timestamps are converted to. Nil means UTC.
	Location *time.Location
	// SkipMalformed keeps going past malformed rows and reports them in
	// Batch.Skipped instead of failing the file.
	SkipMalformed bool
	Logger        *log.Logger
}

// rowMapper turns a CSV record into an event. It returns ok == false for
// rows that are deliberately ignored.
type rowMapper func(p *Parser, rec []string, src string, line int) (ev Event, ok bool, err error)

var mappers = map[Format]rowMapper{
	Coinbase:    mapCoinbase,
	CoinbasePro: mapCoinbasePro,
	Binance:     mapBinance,
}

func (p *Parser) ParseFile(format Format, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(format, f, filepath.Base(path))
}

// Parse reads a whole export. An unrecognized event type fails the file
// without returning any event.
func (p *Parser) Parse(format Format, r io.Reader, source string) (*Batch, error) {
	mapRow, ok := mappers[format]
	if !ok {
		return nil, fmt.Errorf("ingest: unknown format %q", format)
	}
	br := bufio.NewReader(r)
	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	// header
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return &Batch{Source: source, Format: format}, nil
		}
		return nil, fmt.Errorf("ingest: %s: %w", source, err)
	}

	b := &Batch{Source: source, Format: format}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: %s: %w", source, err)
		}
		line, _ := cr.FieldPos(0)
		ev, ok, err := mapRow(p, rec, source, line)
		if err != nil {
			var mre *MalformedRecordError
			if p.SkipMalformed && errors.As(err, &mre) {
				p.logf("skipping row due to parse error: %v", err)
				b.Skipped = append(b.Skipped, mre)
				continue
			}
			return nil, err
		}
		if !ok {
			continue
		}
		b.Events = append(b.Events, ev)
	}
	p.logf("parsed %d events from %s (format=%s)", len(b.Events), source, format)
	return b, nil
}

func (p *Parser) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

// sniffDelimiter guesses the field separator from the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(1024)
	if i := strings.IndexByte(string(head), '\n'); i >= 0 {
		head = head[:i]
	}
	best, n := ',', strings.Count(string(head), ",")
	for _, c := range []rune{';', '\t'} {
		if m := strings.Count(string(head), string(c)); m > n {
			best, n = c, m
		}
	}
	return best
}

func (p *Parser) localize(t time.Time) time.Time {
	if p.Location == nil {
		return t.UTC()
	}
	return t.In(p.Location)
}

func field(rec []string, i int, name, src string, line int) (string, error) {
	if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
		return "", &MalformedRecordError{Source: src, Line: line, Field: name, Err: errMissingField}
	}
	return strings.TrimSpace(rec[i]), nil
}

func parseAmount(rec []string, i int, name, src string, line int) (decimal.Decimal, error) {
	s, err := field(rec, i, name, src, line)
	if err != nil {
		return decimal.Zero, err
	}
	clean := strings.TrimPrefix(strings.ReplaceAll(s, ",", ""), "$")
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, &MalformedRecordError{Source: src, Line: line, Field: name, Value: s, Err: err}
	}
	return d, nil
}

// parseQuantity reads a traded quantity. Exports sign sells negatively, so
// the absolute value is kept; zero is rejected.
func parseQuantity(rec []string, i int, src string, line int) (decimal.Decimal, error) {
	q, err := parseAmount(rec, i, "quantity", src, line)
	if err != nil {
		return decimal.Zero, err
	}
	if q.IsZero() {
		return decimal.Zero, &MalformedRecordError{Source: src, Line: line, Field: "quantity", Value: strings.TrimSpace(rec[i]), Err: errZeroQuantity}
	}
	return q.Abs(), nil
}

// parseOptionalAmount treats an empty cell as zero.
func parseOptionalAmount(rec []string, i int, name, src string, line int) (decimal.Decimal, error) {
	if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
		return decimal.Zero, nil
	}
	return parseAmount(rec, i, name, src, line)
}

func (p *Parser) parseTime(rec []string, i int, layout, src string, line int) (time.Time, error) {
	s, err := field(rec, i, "timestamp", src, line)
	if err != nil {
		return time.Time{}, err
	}
	return p.parseTimeValue(s, layout, src, line)
}

// parseTimeValue reads s as UTC and converts it to the parser's location.
func (p *Parser) parseTimeValue(s, layout, src string, line int) (time.Time, error) {
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, &MalformedRecordError{Source: src, Line: line, Field: "timestamp", Value: s, Err: err}
	}
	return p.localize(t), nil
}
