// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

// Command cointax computes FIFO capital gains and staking income from
// exchange CSV exports.
//
// Usage: cointax [-coinbase F1,F2] [-coinbase-pro F] [-binance F] [-tz ZONE] [-year YYYY] [-commodity C1,C2] [-out report.csv] [-db runs.db] [-workers N] [-skip-malformed] [-v]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"cointax/internal/ingest"
	"cointax/internal/report"
	"cointax/internal/store"
	"cointax/internal/taxlot"
)

type config struct {
	inputs        map[ingest.Format][]string
	zone          string
	year          int
	commodities   map[string]bool
	out           string
	db            string
	workers       int
	skipMalformed bool
	verbose       bool
}

// inputOrder is the order files are loaded in. Within one asset, events with
// equal timestamps keep this order.
var inputOrder = []ingest.Format{ingest.Coinbase, ingest.CoinbasePro, ingest.Binance}

var errUsage = errors.New("no input files")

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseFlags(args []string, stderr io.Writer) (*config, error) {
	fs := flag.NewFlagSet("cointax", flag.ContinueOnError)
	fs.SetOutput(stderr)
	coinbase := fs.String("coinbase", "", "comma-separated Coinbase transaction history CSV file(s)")
	pro := fs.String("coinbase-pro", "", "comma-separated Coinbase Pro fills CSV file(s)")
	binance := fs.String("binance", "", "comma-separated Binance trade history CSV file(s)")
	zone := fs.String("tz", ingest.DefaultZone, "IANA time zone used for dates and holding periods")
	year := fs.Int("year", 0, "tax year to report (e.g. 2023). 0 = all years")
	commodities := fs.String("commodity", "", "comma-separated commodity symbols to include (default: all). Example: BTC,ETH")
	out := fs.String("out", "", "write the per-line report as CSV to this file")
	db := fs.String("db", "", "save the run to this SQLite database")
	workers := fs.Int("workers", 0, "assets settled concurrently. 0 = one goroutine per asset")
	skip := fs.Bool("skip-malformed", false, "skip malformed rows instead of failing the file")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [-coinbase F1,F2] [-coinbase-pro F] [-binance F] [-tz ZONE] [-year YYYY] [-commodity C1,C2] [-out report.csv] [-db runs.db] [-workers N] [-skip-malformed] [-v]\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &config{
		inputs: map[ingest.Format][]string{
			ingest.Coinbase:    splitList(*coinbase),
			ingest.CoinbasePro: splitList(*pro),
			ingest.Binance:     splitList(*binance),
		},
		zone:          *zone,
		year:          *year,
		out:           *out,
		db:            *db,
		workers:       *workers,
		skipMalformed: *skip,
		verbose:       *verbose,
	}
	n := 0
	for _, files := range cfg.inputs {
		n += len(files)
	}
	if n == 0 {
		fs.Usage()
		return nil, errUsage
	}
	for _, c := range splitList(*commodities) {
		if cfg.commodities == nil {
			cfg.commodities = map[string]bool{}
		}
		cfg.commodities[taxlot.NormalizeAsset(c)] = true
	}
	return cfg, nil
}

// readEvents parses every input file in load order and applies the
// commodity filter.
func readEvents(cfg *config, loc *time.Location, logger *log.Logger) ([]ingest.Event, error) {
	p := &ingest.Parser{Location: loc, SkipMalformed: cfg.skipMalformed, Logger: logger}
	var all []ingest.Event
	for _, format := range inputOrder {
		for _, path := range cfg.inputs[format] {
			b, err := p.ParseFile(format, path)
			if err != nil {
				return nil, fmt.Errorf("error parsing %s: %w", path, err)
			}
			if len(b.Skipped) > 0 {
				log.Printf("WARNING: skipped %d malformed row(s) in %s", len(b.Skipped), path)
			}
			for _, ev := range b.Events {
				if cfg.commodities != nil && !cfg.commodities[ev.Asset] {
					continue
				}
				all = append(all, ev)
			}
		}
	}
	return all, nil
}

// run returns the joined per-asset settlement errors after the report for
// the remaining assets has been written.
func run(ctx context.Context, cfg *config, stdout io.Writer) error {
	loc, err := time.LoadLocation(cfg.zone)
	if err != nil {
		return fmt.Errorf("unknown time zone %q: %w", cfg.zone, err)
	}
	var logger *log.Logger
	if cfg.verbose {
		logger = log.Default()
	}

	events, err := readEvents(cfg, loc, logger)
	if err != nil {
		return err
	}
	pf := taxlot.NewPortfolio(taxlot.Options{Workers: cfg.workers, Logger: logger})
	if err := ingest.Load(pf, events); err != nil {
		return err
	}
	results, settleErr := pf.Settle(ctx)
	if ctx.Err() != nil {
		return settleErr
	}

	summary := taxlot.Summarize(results, cfg.year)
	report.PrintSummary(stdout, summary)
	if cfg.verbose {
		report.PrintOpenLots(stdout, results)
	}
	if cfg.out != "" {
		if err := writeReport(cfg.out, summary); err != nil {
			return err
		}
	}
	if cfg.db != "" {
		st, err := store.Open(cfg.db)
		if err != nil {
			return err
		}
		defer st.Close()
		runID, err := st.SaveRun(ctx, results)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Saved run %s to %s\n", runID, cfg.db)
	}
	return settleErr
}

func writeReport(path string, s taxlot.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteCSV(f, s); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}
	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		log.Fatalf("processing error: %v", err)
	}
}
