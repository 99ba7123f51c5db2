package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"canopy.sim/internal/protocol"
	"canopy.sim/internal/sim/catalogs"
	"canopy.sim/internal/sim/cultivation"
	"canopy.sim/internal/sim/tuning"
)

// SQLiteJournal is an append-only, queryable record of what the facility did:
// tick summaries, the domain event stream, and derived tables for harvest
// lots, stage transitions and alerts. It never feeds state back into the
// simulation; it exists for reports and operator tooling.
type SQLiteJournal struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick  atomic.Uint64
	dropEvent atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvent
)

type req struct {
	kind reqKind

	tick  cultivation.TickLogEntry
	event protocol.Event
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTickTotal  uint64 `json:"drop_tick_total"`
	DropEventTotal uint64 `json:"drop_event_total"`
}

func OpenSQLite(path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &SQLiteJournal{
		db: db,
		// High buffer: a mass harvest or an alert storm bursts many events
		// in one tick; the sim must never stall on the journal.
		ch: make(chan req, 65536),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary record.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			plants INTEGER NOT NULL,
			zones INTEGER NOT NULL,
			active_alerts INTEGER NOT NULL,
			avg_health REAL NOT NULL,
			avg_stress REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			plant_id TEXT,
			zone_id TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_tick ON events(type, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_plant_tick ON events(plant_id, tick);`,
		`CREATE TABLE IF NOT EXISTS harvest_lots (
			lot_id TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			plant_id TEXT NOT NULL,
			strain_id TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			yield_g REAL NOT NULL,
			quality REAL NOT NULL,
			thc_pct REAL NOT NULL,
			cbd_pct REAL NOT NULL,
			flowering_days REAL NOT NULL,
			age_days REAL NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lots_strain_tick ON harvest_lots(strain_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_lots_zone_tick ON harvest_lots(zone_id, tick);`,
		`CREATE TABLE IF NOT EXISTS stage_transitions (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			plant_id TEXT NOT NULL,
			from_stage TEXT NOT NULL,
			to_stage TEXT NOT NULL,
			forced INTEGER NOT NULL,
			age_days REAL NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_plant ON stage_transitions(plant_id, tick);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			zone_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			severity TEXT,
			issues_json TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_zone_tick ON alerts(zone_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (j *SQLiteJournal) Close() error {
	var err error
	j.once.Do(func() {
		j.closed.Store(true)
		close(j.ch)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *SQLiteJournal) Stats() Stats {
	if j == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(j.ch),
		QueueCapacity:  cap(j.ch),
		DropTickTotal:  j.dropTick.Load(),
		DropEventTotal: j.dropEvent.Load(),
	}
}

func (j *SQLiteJournal) WriteTick(entry cultivation.TickLogEntry) error {
	if j == nil || j.closed.Load() {
		return nil
	}
	select {
	case j.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the journal falls behind; JSONL logs remain the source of truth.
		j.dropTick.Add(1)
	}
	return nil
}

func (j *SQLiteJournal) WriteAudit(ev protocol.Event) error {
	if j == nil || j.closed.Load() {
		return nil
	}
	select {
	case j.ch <- req{kind: reqEvent, event: ev}:
	default:
		j.dropEvent.Add(1)
	}
	return nil
}

// UpsertCatalogs records the config the facility is running with, digests
// included, so a journal file is self-describing.
func (j *SQLiteJournal) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if j == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("strains_defs", filepath.Join(configDir, "strains.json"))
		read("species_defs", filepath.Join(configDir, "species.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["strains_defs"]; len(b) > 0 {
		rows = append(rows, kv{name: "strains_defs", digest: cats.Strains.DefsDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Strains.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "strains_palette", digest: cats.Strains.PaletteDigest, json: b})
	}
	if b := raw["species_defs"]; len(b) > 0 {
		rows = append(rows, kv{name: "species_defs", digest: cats.Species.Digest, json: b})
	}
	{
		// Tuning: store the values we actually apply (canonical JSON).
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := j.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (j *SQLiteJournal) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := j.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,plants,zones,active_alerts,avg_health,avg_stress,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertEvent, _ := j.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,type,plant_id,zone_id,raw_json) VALUES(?,?,?,?,?,?)`)
	insertLot, _ := j.db.Prepare(`INSERT OR REPLACE INTO harvest_lots(lot_id,tick,plant_id,strain_id,zone_id,yield_g,quality,thc_pct,cbd_pct,flowering_days,age_days,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertTransition, _ := j.db.Prepare(`INSERT OR REPLACE INTO stage_transitions(tick,seq,plant_id,from_stage,to_stage,forced,age_days) VALUES(?,?,?,?,?,?,?)`)
	insertAlert, _ := j.db.Prepare(`INSERT OR REPLACE INTO alerts(tick,seq,zone_id,kind,severity,issues_json) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, insertLot, insertTransition, insertAlert} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastEventTick uint64
		eventSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range j.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					int64(r.tick.Tick),
					r.tick.Digest,
					r.tick.Plants,
					r.tick.Zones,
					r.tick.ActiveAlerts,
					r.tick.AvgHealth,
					r.tick.AvgStress,
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqEvent:
			ev := r.event
			tick := ev.Tick()
			if tick != lastEventTick {
				lastEventTick = tick
				eventSeq = 0
			}
			seq := eventSeq
			eventSeq++

			raw, _ := json.Marshal(ev)
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					int64(tick),
					seq,
					ev.EventType(),
					evString(ev, "plant_id"),
					evString(ev, "zone_id"),
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			if !j.indexEvent(tx, insertLot, insertTransition, insertAlert, ev, tick, seq, &opCount) {
				rollback()
				continue
			}
		}
		flushIfNeeded()
	}

	commit()
}

// indexEvent projects selected event types into their dedicated tables.
// Returns false when the enclosing transaction must be rolled back.
func (j *SQLiteJournal) indexEvent(tx *sql.Tx, insertLot, insertTransition, insertAlert *sql.Stmt, ev protocol.Event, tick uint64, seq int, opCount *int) bool {
	switch ev.EventType() {
	case protocol.EvHarvested:
		if insertLot == nil {
			return true
		}
		if _, err := tx.Stmt(insertLot).Exec(
			evString(ev, "lot_id"),
			int64(tick),
			evString(ev, "plant_id"),
			evString(ev, "strain_id"),
			evString(ev, "zone_id"),
			evFloat(ev, "yield_g"),
			evFloat(ev, "quality"),
			evFloat(ev, "thc_pct"),
			evFloat(ev, "cbd_pct"),
			evFloat(ev, "flowering_days"),
			evFloat(ev, "age_days"),
			time.Now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			return false
		}
		(*opCount)++

	case protocol.EvStageChanged:
		if insertTransition == nil {
			return true
		}
		forced := 0
		if evBool(ev, "forced") {
			forced = 1
		}
		if _, err := tx.Stmt(insertTransition).Exec(
			int64(tick),
			seq,
			evString(ev, "plant_id"),
			evString(ev, "from"),
			evString(ev, "to"),
			forced,
			evFloat(ev, "age_days"),
		); err != nil {
			return false
		}
		(*opCount)++

	case protocol.EvEnvAlert, protocol.EvAlertCleared:
		if insertAlert == nil {
			return true
		}
		kind := "RAISED"
		if ev.EventType() == protocol.EvAlertCleared {
			kind = "CLEARED"
		}
		issues, _ := json.Marshal(evStrings(ev, "issues"))
		if _, err := tx.Stmt(insertAlert).Exec(
			int64(tick),
			seq,
			evString(ev, "zone_id"),
			kind,
			evString(ev, "severity"),
			string(issues),
		); err != nil {
			return false
		}
		(*opCount)++
	}
	return true
}

func evString(ev protocol.Event, key string) string {
	s, _ := ev[key].(string)
	return s
}

func evFloat(ev protocol.Event, key string) float64 {
	switch v := ev[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return 0
}

func evBool(ev protocol.Event, key string) bool {
	b, _ := ev[key].(bool)
	return b
}

func evStrings(ev protocol.Event, key string) []string {
	switch v := ev[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
