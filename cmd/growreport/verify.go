package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"

	"canopy.sim/internal/sim/cultivation"
)

// verifyCmd cross-checks the JSONL tick log against the sqlite journal.
// The JSONL files are the primary record; the journal may legitimately
// miss ticks it dropped under load, but a digest that disagrees for the
// same tick means one of the two records is corrupt.
func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dataDir, facilityID, dbPath := journalFlags(fs)
	ticksDir := fs.String("ticks", "", "tick log directory (defaults to <data>/facilities/<facility>/ticks)")
	_ = fs.Parse(args)

	dir := strings.TrimSpace(*ticksDir)
	if dir == "" {
		dir = filepath.Join(*dataDir, "facilities", *facilityID, "ticks")
	}

	db, _, err := openJournal(*dataDir, *facilityID, *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open journal:", err)
		os.Exit(1)
	}
	defer db.Close()

	res, err := verifyTickLogs(dir, db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	if res.Checked == 0 {
		fmt.Fprintln(os.Stderr, "no tick log entries found in", dir)
		os.Exit(2)
	}

	fmt.Printf("checked %s tick entries in %d files (tick %s..%s)\n",
		humanize.Comma(int64(res.Checked)), res.Files,
		humanize.Comma(int64(res.FirstTick)), humanize.Comma(int64(res.LastTick)))
	if res.MissingFromJournal > 0 {
		fmt.Printf("journal is missing %s entries (dropped under load)\n", humanize.Comma(int64(res.MissingFromJournal)))
	}
	if len(res.Mismatched) > 0 {
		for _, tick := range res.Mismatched {
			fmt.Fprintf(os.Stderr, "digest mismatch at tick %d\n", tick)
		}
		os.Exit(1)
	}
	fmt.Println("digests match")
}

type verifyResult struct {
	Files              int
	Checked            int
	FirstTick          uint64
	LastTick           uint64
	MissingFromJournal int
	Mismatched         []uint64
}

func verifyTickLogs(dir string, db *sqlx.DB) (verifyResult, error) {
	var res verifyResult

	var rows []struct {
		Tick   int64  `db:"tick"`
		Digest string `db:"digest"`
	}
	if err := db.Select(&rows, `SELECT tick, digest FROM ticks`); err != nil {
		return res, fmt.Errorf("journal ticks: %w", err)
	}
	journal := make(map[uint64]string, len(rows))
	for _, r := range rows {
		journal[uint64(r.Tick)] = r.Digest
	}

	files, err := listTickLogFiles(dir)
	if err != nil {
		return res, err
	}
	res.Files = len(files)

	for _, path := range files {
		if err := verifyTickLogFile(path, journal, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func listTickLogFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func verifyTickLogFile(path string, journal map[uint64]string, res *verifyResult) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry cultivation.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if res.Checked == 0 || entry.Tick < res.FirstTick {
			res.FirstTick = entry.Tick
		}
		if entry.Tick > res.LastTick {
			res.LastTick = entry.Tick
		}
		res.Checked++

		want, ok := journal[entry.Tick]
		if !ok {
			res.MissingFromJournal++
			continue
		}
		if want != entry.Digest {
			res.Mismatched = append(res.Mismatched, entry.Tick)
		}
	}
	return sc.Err()
}
