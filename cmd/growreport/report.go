package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"gonum.org/v1/gonum/stat"

	"canopy.sim/internal/protocol"
)

// summaryReport aggregates one journal into the numbers an operator asks
// for first: how long the run was, what came out of it, and where the
// plants struggled.
type summaryReport struct {
	Ticks     int64
	FirstTick int64
	LastTick  int64
	Events    int64
	Deaths    int64

	Lots        int64
	TotalYieldG float64
	MeanQuality float64
	Strains     []strainSummary

	Transitions int64
	Forced      int64
	Stages      []stageCount

	AlertsRaised  int64
	AlertsCleared int64
}

type strainSummary struct {
	StrainID     string
	Lots         int
	MeanYieldG   float64
	StdDevYieldG float64
	MeanQuality  float64
	MeanTHCPct   float64
}

type stageCount struct {
	From  string `db:"from_stage"`
	To    string `db:"to_stage"`
	Count int64  `db:"n"`
}

func loadSummary(db *sqlx.DB) (summaryReport, error) {
	var r summaryReport

	var span struct {
		N     int64 `db:"n"`
		First int64 `db:"first"`
		Last  int64 `db:"last"`
	}
	if err := db.Get(&span, `SELECT COUNT(*) AS n, COALESCE(MIN(tick),0) AS first, COALESCE(MAX(tick),0) AS last FROM ticks`); err != nil {
		return r, fmt.Errorf("ticks: %w", err)
	}
	r.Ticks, r.FirstTick, r.LastTick = span.N, span.First, span.Last

	if err := db.Get(&r.Events, `SELECT COUNT(*) FROM events`); err != nil {
		return r, fmt.Errorf("events: %w", err)
	}
	if err := db.Get(&r.Deaths, `SELECT COUNT(*) FROM events WHERE type = ?`, protocol.EvPlantDied); err != nil {
		return r, fmt.Errorf("deaths: %w", err)
	}

	var lots []struct {
		StrainID string  `db:"strain_id"`
		YieldG   float64 `db:"yield_g"`
		Quality  float64 `db:"quality"`
		THCPct   float64 `db:"thc_pct"`
	}
	if err := db.Select(&lots, `SELECT strain_id, yield_g, quality, thc_pct FROM harvest_lots`); err != nil {
		return r, fmt.Errorf("lots: %w", err)
	}
	r.Lots = int64(len(lots))

	type accum struct {
		yields    []float64
		qualities []float64
		thcs      []float64
	}
	byStrain := map[string]*accum{}
	var allQuality []float64
	for _, l := range lots {
		a := byStrain[l.StrainID]
		if a == nil {
			a = &accum{}
			byStrain[l.StrainID] = a
		}
		a.yields = append(a.yields, l.YieldG)
		a.qualities = append(a.qualities, l.Quality)
		a.thcs = append(a.thcs, l.THCPct)
		r.TotalYieldG += l.YieldG
		allQuality = append(allQuality, l.Quality)
	}
	if len(allQuality) > 0 {
		r.MeanQuality = stat.Mean(allQuality, nil)
	}
	for id, a := range byStrain {
		s := strainSummary{
			StrainID:    id,
			Lots:        len(a.yields),
			MeanYieldG:  stat.Mean(a.yields, nil),
			MeanQuality: stat.Mean(a.qualities, nil),
			MeanTHCPct:  stat.Mean(a.thcs, nil),
		}
		// StdDev is the sample deviation and needs at least two lots.
		if len(a.yields) > 1 {
			s.StdDevYieldG = stat.StdDev(a.yields, nil)
		}
		r.Strains = append(r.Strains, s)
	}
	sort.Slice(r.Strains, func(i, j int) bool {
		if r.Strains[i].Lots != r.Strains[j].Lots {
			return r.Strains[i].Lots > r.Strains[j].Lots
		}
		return r.Strains[i].StrainID < r.Strains[j].StrainID
	})

	if err := db.Select(&r.Stages, `SELECT from_stage, to_stage, COUNT(*) AS n FROM stage_transitions GROUP BY from_stage, to_stage ORDER BY n DESC, from_stage, to_stage`); err != nil {
		return r, fmt.Errorf("transitions: %w", err)
	}
	for _, s := range r.Stages {
		r.Transitions += s.Count
	}
	if err := db.Get(&r.Forced, `SELECT COUNT(*) FROM stage_transitions WHERE forced = 1`); err != nil {
		return r, fmt.Errorf("forced transitions: %w", err)
	}

	var kinds []struct {
		Kind string `db:"kind"`
		N    int64  `db:"n"`
	}
	if err := db.Select(&kinds, `SELECT kind, COUNT(*) AS n FROM alerts GROUP BY kind`); err != nil {
		return r, fmt.Errorf("alerts: %w", err)
	}
	for _, k := range kinds {
		switch k.Kind {
		case "RAISED":
			r.AlertsRaised = k.N
		case "CLEARED":
			r.AlertsCleared = k.N
		}
	}
	return r, nil
}

// lotRow is one harvest_lots row. The csv tags drive the export
// subcommand; the json tags drive the lots listing.
type lotRow struct {
	LotID         string  `db:"lot_id" json:"lot_id" csv:"lot_id"`
	Tick          int64   `db:"tick" json:"tick" csv:"tick"`
	PlantID       string  `db:"plant_id" json:"plant_id" csv:"plant_id"`
	StrainID      string  `db:"strain_id" json:"strain_id" csv:"strain_id"`
	ZoneID        string  `db:"zone_id" json:"zone_id" csv:"zone_id"`
	YieldG        float64 `db:"yield_g" json:"yield_g" csv:"yield_g"`
	Quality       float64 `db:"quality" json:"quality" csv:"quality"`
	THCPct        float64 `db:"thc_pct" json:"thc_pct" csv:"thc_pct"`
	CBDPct        float64 `db:"cbd_pct" json:"cbd_pct" csv:"cbd_pct"`
	FloweringDays float64 `db:"flowering_days" json:"flowering_days" csv:"flowering_days"`
	AgeDays       float64 `db:"age_days" json:"age_days" csv:"age_days"`
	RecordedAt    string  `db:"recorded_at" json:"recorded_at" csv:"recorded_at"`
}

type lotFilter struct {
	Strain    string
	Zone      string
	SinceTick uint64
	Limit     int
}

func queryLots(db *sqlx.DB, f lotFilter) ([]lotRow, error) {
	q := `SELECT lot_id,tick,plant_id,strain_id,zone_id,yield_g,quality,thc_pct,cbd_pct,flowering_days,age_days,recorded_at FROM harvest_lots`
	var (
		where []string
		args  []interface{}
	)
	if f.Strain != "" {
		where = append(where, "strain_id = ?")
		args = append(args, f.Strain)
	}
	if f.Zone != "" {
		where = append(where, "zone_id = ?")
		args = append(args, f.Zone)
	}
	if f.SinceTick > 0 {
		where = append(where, "tick >= ?")
		args = append(args, int64(f.SinceTick))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY tick, lot_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var rows []lotRow
	if err := db.Select(&rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
