package cultivation

// Plant is one individual under cultivation. Fields are mutated only from the
// facility loop goroutine.
//
// Health and Progress use different scales on purpose: Health is 0..100 (a
// percentage growers reason about), while Water, Nutrient and Stress are
// normalized 0..1 levels. Progress counts accumulated growth-days toward the
// current stage's completion threshold and resets to zero on every
// transition; DaysInStage counts raw sim days since the last transition.
type Plant struct {
	ID       string `json:"id"`
	StrainID string `json:"strain_id"`
	ZoneID   string `json:"zone_id"`

	Stage    Stage   `json:"-"`
	Health   float64 `json:"health"`
	Stress   float64 `json:"stress"`
	Water    float64 `json:"water"`
	Nutrient float64 `json:"nutrient"`

	Progress    float64 `json:"progress_days"`
	DaysInStage float64 `json:"days_in_stage"`
	AgeDays     float64 `json:"age_days"`

	// FlowerStartAge is the plant's age when it entered Flowering, or -1
	// before that. Harvest reports flowering duration from it.
	FlowerStartAge float64 `json:"flower_start_age"`

	PlantedTick         uint64 `json:"planted_tick"`
	LastProcessedTick   uint64 `json:"last_processed_tick"`
	LastStageChangeTick uint64 `json:"last_stage_change_tick"`

	Dead      bool `json:"dead,omitempty"`
	Harvested bool `json:"harvested,omitempty"`

	// criticalNotified latches the low-health warning so it fires once per
	// dip instead of every visit.
	criticalNotified bool
}

// Removable reports whether cleanup may drop the plant from the roster.
func (p *Plant) Removable() bool { return p.Dead || p.Harvested }

// completion is how far through the current stage the plant has progressed,
// 0..1 against the given requirement.
func (p *Plant) completion(req StageRequirements) float64 {
	if req.ProgressDays <= 0 {
		return 1
	}
	return clamp01(p.Progress / req.ProgressDays)
}
