package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"canopy.sim/internal/persistence/journal"
)

// journalRuntime bundles the durable journal sinks: the local SQLite
// read-model and an optional remote HTTP journal configured via
// CANOPY_JOURNAL_URL / CANOPY_JOURNAL_TOKEN.
type journalRuntime struct {
	sqlite *journal.SQLiteJournal
	remote *journal.RemoteJournal
}

func buildJournalRuntime(facilityDir, facilityID string, disableDB bool, logger *log.Logger) (*journalRuntime, error) {
	jr := &journalRuntime{}

	if !disableDB {
		j, err := journal.OpenSQLite(filepath.Join(facilityDir, "journal.db"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		jr.sqlite = j
	}

	endpoint := strings.TrimSpace(os.Getenv("CANOPY_JOURNAL_URL"))
	if endpoint != "" {
		r, err := journal.OpenRemote(journal.RemoteConfig{
			Endpoint:   endpoint,
			Token:      strings.TrimSpace(os.Getenv("CANOPY_JOURNAL_TOKEN")),
			FacilityID: facilityID,
			BatchSize:  envInt("CANOPY_JOURNAL_BATCH", 0),
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open remote journal: %w", err)
		}
		jr.remote = r
		logger.Printf("remote journal enabled endpoint=%s", endpoint)
	}

	return jr, nil
}

func (j *journalRuntime) Close() {
	if j == nil {
		return
	}
	if j.remote != nil {
		_ = j.remote.Close()
	}
	if j.sqlite != nil {
		_ = j.sqlite.Close()
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
