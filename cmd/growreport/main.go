// Command growreport answers "how did the grow go" from a facility
// journal database. The default summary covers the tick span, harvest
// totals with per-strain yield statistics, stage transitions, and
// alerts; the lots and export subcommands list and CSV-dump the
// individual harvest lots; verify cross-checks the journal against the
// JSONL tick log.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "summary":
			summaryCmd(os.Args[2:])
			return
		case "lots":
			lotsCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		}
	}
	summaryCmd(os.Args[1:])
}

func journalFlags(fs *flag.FlagSet) (dataDir, facilityID, dbPath *string) {
	dataDir = fs.String("data", "./data", "runtime data directory")
	facilityID = fs.String("facility", "facility-1", "facility id")
	dbPath = fs.String("db", "", "journal db path (overrides -data/-facility)")
	return dataDir, facilityID, dbPath
}

func openJournal(dataDir, facilityID, override string) (*sqlx.DB, string, error) {
	path := strings.TrimSpace(override)
	if path == "" {
		path = filepath.Join(dataDir, "facilities", facilityID, "journal.db")
	}
	// Stat first: the sqlite driver would otherwise create an empty db
	// at a mistyped path and report "no such table" instead.
	if _, err := os.Stat(path); err != nil {
		return nil, "", err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, "", err
	}
	return db, path, nil
}

func summaryCmd(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	dataDir, facilityID, dbPath := journalFlags(fs)
	_ = fs.Parse(args)

	db, path, err := openJournal(*dataDir, *facilityID, *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open journal:", err)
		os.Exit(1)
	}
	defer db.Close()

	r, err := loadSummary(db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "summary:", err)
		os.Exit(1)
	}
	printSummary(path, r)
}

func printSummary(path string, r summaryReport) {
	fmt.Printf("journal %s\n", path)
	fmt.Printf("ticks   %s (tick %s..%s)\n",
		humanize.Comma(r.Ticks), humanize.Comma(r.FirstTick), humanize.Comma(r.LastTick))
	fmt.Printf("events  %s (%s deaths)\n", humanize.Comma(r.Events), humanize.Comma(r.Deaths))
	fmt.Printf("harvest %s lots, %s g total", humanize.Comma(r.Lots), humanize.CommafWithDigits(r.TotalYieldG, 1))
	if r.Lots > 0 {
		fmt.Printf(", mean quality %.1f", r.MeanQuality)
	}
	fmt.Println()

	if len(r.Strains) > 0 {
		fmt.Println()
		fmt.Printf("%-24s %6s %10s %10s %8s %6s\n", "STRAIN", "LOTS", "MEAN g", "STDDEV g", "QUALITY", "THC%")
		for _, s := range r.Strains {
			fmt.Printf("%-24s %6s %10.1f %10.1f %8.1f %6.1f\n",
				s.StrainID, humanize.Comma(int64(s.Lots)), s.MeanYieldG, s.StdDevYieldG, s.MeanQuality, s.MeanTHCPct)
		}
	}

	if r.Transitions > 0 {
		fmt.Println()
		fmt.Printf("transitions %s (%s forced)\n", humanize.Comma(r.Transitions), humanize.Comma(r.Forced))
		for _, s := range r.Stages {
			fmt.Printf("  %-12s -> %-12s %s\n", s.From, s.To, humanize.Comma(s.Count))
		}
	}

	fmt.Println()
	fmt.Printf("alerts  %s raised, %s cleared\n", humanize.Comma(r.AlertsRaised), humanize.Comma(r.AlertsCleared))
}

func lotsCmd(args []string) {
	fs := flag.NewFlagSet("lots", flag.ExitOnError)
	dataDir, facilityID, dbPath := journalFlags(fs)
	strain := fs.String("strain", "", "strain id filter")
	zone := fs.String("zone", "", "zone id filter")
	sinceTick := fs.Uint64("since_tick", 0, "only lots harvested at or after this tick")
	limit := fs.Int("limit", 20, "result limit (0 = all)")
	_ = fs.Parse(args)

	db, _, err := openJournal(*dataDir, *facilityID, *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open journal:", err)
		os.Exit(1)
	}
	defer db.Close()

	rows, err := queryLots(db, lotFilter{Strain: *strain, Zone: *zone, SinceTick: *sinceTick, Limit: *limit})
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir, facilityID, dbPath := journalFlags(fs)
	strain := fs.String("strain", "", "strain id filter")
	zone := fs.String("zone", "", "zone id filter")
	sinceTick := fs.Uint64("since_tick", 0, "only lots harvested at or after this tick")
	out := fs.String("out", "", "output csv path (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(os.Stderr, "missing -out")
		os.Exit(2)
	}

	db, _, err := openJournal(*dataDir, *facilityID, *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open journal:", err)
		os.Exit(1)
	}
	defer db.Close()

	rows, err := queryLots(db, lotFilter{Strain: *strain, Zone: *zone, SinceTick: *sinceTick})
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create:", err)
		os.Exit(1)
	}
	if err := gocsv.Marshal(rows, f); err != nil {
		_ = f.Close()
		fmt.Fprintln(os.Stderr, "write csv:", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d lots to %s\n", len(rows), *out)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
