package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"canopy.sim/internal/protocol"
	"canopy.sim/internal/sim/cultivation"
)

func TestTickLogger_WritesCompressedJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)

	for i := 0; i < 3; i++ {
		if err := l.WriteTick(cultivation.TickLogEntry{Tick: uint64(100 + i), Plants: i, Digest: "d"}); err != nil {
			t.Fatalf("WriteTick[%d]: %v", i, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "ticks", "ticks-*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one tick log file, got %v (err=%v)", matches, err)
	}

	entries := readJSONLZst[cultivation.TickLogEntry](t, matches[0])
	if len(entries) != 3 {
		t.Fatalf("entries=%d want=3", len(entries))
	}
	if entries[0].Tick != 100 || entries[2].Tick != 102 {
		t.Fatalf("tick order mismatch: first=%d last=%d", entries[0].Tick, entries[2].Tick)
	}
}

func TestAuditLogger_RoundTripsEvents(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)

	ev := protocol.Event{"t": float64(9), "type": protocol.EvPlantSeeded, "plant_id": "P1"}
	if err := l.WriteAudit(ev); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "events", "events-*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one event log file, got %v (err=%v)", matches, err)
	}

	events := readJSONLZst[protocol.Event](t, matches[0])
	if len(events) != 1 {
		t.Fatalf("events=%d want=1", len(events))
	}
	if events[0].EventType() != protocol.EvPlantSeeded || events[0].Tick() != 9 {
		t.Fatalf("decoded event mismatch: %v", events[0])
	}
}

func readJSONLZst[T any](t *testing.T, path string) []T {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var out []T
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for sc.Scan() {
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}
