package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz       int  `yaml:"tick_rate_hz"`
	DayTicks         int  `yaml:"day_ticks"`
	MaxPlants        int  `yaml:"max_plants"`
	BatchBaseSize    int  `yaml:"batch_base_size"`
	HighCapability   bool `yaml:"high_capability"`
	StatsWindowTicks int  `yaml:"stats_window_ticks"`
	TickLogEvery     int  `yaml:"tick_log_every_ticks"`
	AlertEvery       int  `yaml:"alert_every_ticks"`
	DriftEvery       int  `yaml:"drift_every_ticks"`

	YieldCacheTTLSeconds   int `yaml:"yield_cache_ttl_s"`
	CacheEvictEverySeconds int `yaml:"cache_evict_every_s"`

	GlobalGrowthModifier float64 `yaml:"global_growth_modifier"`
	StartingHealth       float64 `yaml:"starting_health"`
	YieldVariability     float64 `yaml:"yield_variability"`

	PlantCare PlantCare `yaml:"plant_care"`
	Drift     Drift     `yaml:"drift"`
}

type PlantCare struct {
	WaterUsePerDay         float64 `yaml:"water_use_per_day"`
	NutrientUsePerDay      float64 `yaml:"nutrient_use_per_day"`
	WaterPerAction         float64 `yaml:"water_per_action"`
	FeedPerAction          float64 `yaml:"feed_per_action"`
	RecoveryPerDay         float64 `yaml:"recovery_per_day"`
	StressDamagePerDay     float64 `yaml:"stress_damage_per_day"`
	DeficiencyDamagePerDay float64 `yaml:"deficiency_damage_per_day"`
	HealthCriticalBelow    float64 `yaml:"health_critical_below"`
}

type Drift struct {
	Relax            float64 `yaml:"relax"`
	Leak             float64 `yaml:"leak"`
	NoiseAmpTemp     float64 `yaml:"noise_amp_temp"`
	NoiseAmpHumidity float64 `yaml:"noise_amp_humidity"`
	SeasonLengthDays int     `yaml:"season_length_days"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Defaults mirrors configs/tuning.yaml for hosts running without one.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:  "1.0",
		TickRateHz:       5,
		DayTicks:         6000,
		MaxPlants:        2000,
		BatchBaseSize:    10,
		StatsWindowTicks: 6000,
		TickLogEvery:     25,
		AlertEvery:       25,
		DriftEvery:       50,

		YieldCacheTTLSeconds:   5,
		CacheEvictEverySeconds: 60,

		GlobalGrowthModifier: 1.0,
		StartingHealth:       100,
		YieldVariability:     0.2,

		PlantCare: PlantCare{
			WaterUsePerDay:         0.25,
			NutrientUsePerDay:      0.2,
			WaterPerAction:         0.3,
			FeedPerAction:          0.3,
			RecoveryPerDay:         2.0,
			StressDamagePerDay:     10.0,
			DeficiencyDamagePerDay: 8.0,
			HealthCriticalBelow:    20,
		},
		Drift: Drift{
			Relax:            0.15,
			Leak:             0.05,
			NoiseAmpTemp:     1.5,
			NoiseAmpHumidity: 4.0,
			SeasonLengthDays: 91,
		},
	}
}
