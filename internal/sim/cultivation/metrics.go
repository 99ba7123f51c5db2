package cultivation

// FacilityMetrics is a thread-safe read-only view of key facility runtime
// signals. It is updated from the facility loop goroutine and read from HTTP
// handlers/tests.
type FacilityMetrics struct {
	Tick uint64 `json:"tick"`

	Plants    int `json:"plants"`
	Zones     int `json:"zones"`
	Observers int `json:"observers"`

	ByStage map[string]int `json:"by_stage"`

	AvgHealth float64 `json:"avg_health"`
	AvgStress float64 `json:"avg_stress"`

	ActiveAlerts int `json:"active_alerts"`

	HarvestedLots  uint64  `json:"harvested_lots"`
	HarvestedGrams float64 `json:"harvested_grams"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	StatsWindowTicks uint64      `json:"stats_window_ticks"`
	StatsWindow      StatsBucket `json:"stats_window"`

	OutdoorTempC    float64 `json:"outdoor_temp_c"`
	OutdoorHumidity float64 `json:"outdoor_humidity"`
}

type QueueDepths struct {
	Inbox         int `json:"inbox"`
	ObserverJoin  int `json:"observer_join"`
	ObserverLeave int `json:"observer_leave"`
}

func (f *Facility) Metrics() FacilityMetrics {
	if f == nil {
		return FacilityMetrics{}
	}
	v := f.metrics.Load()
	if v == nil {
		return FacilityMetrics{}
	}
	m, ok := v.(FacilityMetrics)
	if !ok {
		return FacilityMetrics{}
	}
	return m
}
