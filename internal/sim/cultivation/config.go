package cultivation

type FacilityConfig struct {
	ID         string
	TickRateHz int
	DayTicks   int
	Seed       int64

	MaxPlants      int
	BatchBaseSize  int
	HighCapability bool

	GlobalGrowthModifier float64
	StartingHealth       float64
	YieldVariability     float64

	// Cadences. Zero DriftEveryTicks disables climate drift entirely.
	AlertEveryTicks      int
	DriftEveryTicks      int
	CacheEvictEveryTicks int
	YieldCacheTTLTicks   int
	StatsWindowTicks     int
	TickLogEveryTicks    int

	Care  CareConfig
	Drift DriftConfig
}

// CareConfig tunes the daily resource/health bookkeeping per plant. Rates
// are per sim day; levels are 0..1.
type CareConfig struct {
	WaterUsePerDay    float64
	NutrientUsePerDay float64
	WaterPerAction    float64
	FeedPerAction     float64

	RecoveryPerDay         float64
	StressDamagePerDay     float64
	DeficiencyDamagePerDay float64

	HealthCriticalBelow float64
}

// DriftConfig tunes how zone climate moves between drift passes: relaxation
// toward the setpoint, leak toward outdoor weather scaled by insulation, and
// noise wobble on top.
type DriftConfig struct {
	Relax            float64
	Leak             float64
	NoiseAmpTemp     float64
	NoiseAmpHumidity float64
	SeasonLengthDays int
}

func (c *FacilityConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "facility-1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.DayTicks <= 0 {
		c.DayTicks = 6000
	}
	if c.MaxPlants <= 0 {
		c.MaxPlants = 2000
	}
	if c.BatchBaseSize <= 0 {
		c.BatchBaseSize = 10
	}
	if c.GlobalGrowthModifier <= 0 {
		c.GlobalGrowthModifier = 1.0
	}
	if c.StartingHealth <= 0 {
		c.StartingHealth = 100
	}
	if c.YieldVariability < 0 {
		c.YieldVariability = 0
	} else if c.YieldVariability == 0 {
		c.YieldVariability = 0.2
	}
	if c.AlertEveryTicks <= 0 {
		c.AlertEveryTicks = 25
	}
	if c.CacheEvictEveryTicks <= 0 {
		c.CacheEvictEveryTicks = c.TickRateHz * 60
	}
	if c.YieldCacheTTLTicks <= 0 {
		c.YieldCacheTTLTicks = c.TickRateHz * 5
	}
	if c.StatsWindowTicks <= 0 {
		c.StatsWindowTicks = c.DayTicks
	}
	if c.TickLogEveryTicks <= 0 {
		c.TickLogEveryTicks = 25
	}
	c.Care.applyDefaults()
	c.Drift.applyDefaults()
}

func (c *CareConfig) applyDefaults() {
	if c.WaterUsePerDay <= 0 {
		c.WaterUsePerDay = 0.25
	}
	if c.NutrientUsePerDay <= 0 {
		c.NutrientUsePerDay = 0.2
	}
	if c.WaterPerAction <= 0 {
		c.WaterPerAction = 0.3
	}
	if c.FeedPerAction <= 0 {
		c.FeedPerAction = 0.3
	}
	if c.RecoveryPerDay <= 0 {
		c.RecoveryPerDay = 2.0
	}
	if c.StressDamagePerDay <= 0 {
		c.StressDamagePerDay = 10
	}
	if c.DeficiencyDamagePerDay <= 0 {
		c.DeficiencyDamagePerDay = 8
	}
	if c.HealthCriticalBelow <= 0 {
		c.HealthCriticalBelow = 20
	}
}

func (c *DriftConfig) applyDefaults() {
	if c.Relax <= 0 {
		c.Relax = 0.15
	}
	if c.Leak <= 0 {
		c.Leak = 0.05
	}
	if c.NoiseAmpTemp <= 0 {
		c.NoiseAmpTemp = 1.5
	}
	if c.NoiseAmpHumidity <= 0 {
		c.NoiseAmpHumidity = 4.0
	}
	if c.SeasonLengthDays <= 0 {
		c.SeasonLengthDays = 91
	}
}
