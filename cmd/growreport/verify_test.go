package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"canopy.sim/internal/persistence/journal"
	persistlog "canopy.sim/internal/persistence/log"
	"canopy.sim/internal/sim/cultivation"
)

func TestVerifyTickLogs(t *testing.T) {
	facilityDir := t.TempDir()

	entries := []cultivation.TickLogEntry{
		{Tick: 10, Plants: 1, Zones: 1, Digest: "d10"},
		{Tick: 20, Plants: 2, Zones: 1, Digest: "d20"},
		{Tick: 30, Plants: 2, Zones: 1, Digest: "d30"},
	}

	tickLog := persistlog.NewTickLogger(facilityDir)
	for _, e := range entries {
		if err := tickLog.WriteTick(e); err != nil {
			t.Fatalf("WriteTick jsonl: %v", err)
		}
	}
	if err := tickLog.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}

	dbPath := filepath.Join(facilityDir, "journal.db")
	j, err := journal.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for _, e := range entries {
		if err := j.WriteTick(e); err != nil {
			t.Fatalf("WriteTick journal: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("sqlx.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ticksDir := filepath.Join(facilityDir, "ticks")

	res, err := verifyTickLogs(ticksDir, db)
	if err != nil {
		t.Fatalf("verifyTickLogs: %v", err)
	}
	if res.Checked != 3 || res.Files != 1 {
		t.Fatalf("checked=%d files=%d want 3/1", res.Checked, res.Files)
	}
	if res.FirstTick != 10 || res.LastTick != 30 {
		t.Fatalf("tick span: got %d..%d want 10..30", res.FirstTick, res.LastTick)
	}
	if res.MissingFromJournal != 0 || len(res.Mismatched) != 0 {
		t.Fatalf("clean run flagged: %+v", res)
	}

	// Corrupt one digest and drop another tick from the journal side.
	if _, err := db.Exec(`UPDATE ticks SET digest = 'bad' WHERE tick = 20`); err != nil {
		t.Fatalf("corrupt digest: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM ticks WHERE tick = 30`); err != nil {
		t.Fatalf("drop tick: %v", err)
	}

	res, err = verifyTickLogs(ticksDir, db)
	if err != nil {
		t.Fatalf("verifyTickLogs after corruption: %v", err)
	}
	if res.MissingFromJournal != 1 {
		t.Fatalf("MissingFromJournal=%d want=1", res.MissingFromJournal)
	}
	if len(res.Mismatched) != 1 || res.Mismatched[0] != 20 {
		t.Fatalf("Mismatched=%v want=[20]", res.Mismatched)
	}
}

func TestListTickLogFiles_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"ticks-2026-01-02-11.jsonl.zst",
		"ticks-2026-01-02-09.jsonl.zst",
		"events-2026-01-02-09.jsonl.zst",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := listTickLogFiles(dir)
	if err != nil {
		t.Fatalf("listTickLogFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%d want=2: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "ticks-2026-01-02-09.jsonl.zst" {
		t.Fatalf("sort order: got %v", files)
	}
}
