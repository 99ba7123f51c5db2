package cultivation

import "testing"

func TestFacilityConfig_ApplyDefaults(t *testing.T) {
	var c FacilityConfig
	c.applyDefaults()

	if c.ID == "" || c.TickRateHz != 5 || c.DayTicks != 6000 {
		t.Fatalf("core defaults: %+v", c)
	}
	if c.MaxPlants != 2000 || c.BatchBaseSize != 10 {
		t.Fatalf("capacity defaults: %+v", c)
	}
	if c.GlobalGrowthModifier != 1.0 || c.StartingHealth != 100 {
		t.Fatalf("growth defaults: %+v", c)
	}
	if c.YieldVariability != 0.2 {
		t.Fatalf("yield variability=%v want=0.2", c.YieldVariability)
	}
	if c.AlertEveryTicks != 25 || c.TickLogEveryTicks != 25 {
		t.Fatalf("cadence defaults: %+v", c)
	}
	// Derived cadences follow the tick rate and day length.
	if c.CacheEvictEveryTicks != c.TickRateHz*60 {
		t.Fatalf("cache evict=%d want=%d", c.CacheEvictEveryTicks, c.TickRateHz*60)
	}
	if c.YieldCacheTTLTicks != c.TickRateHz*5 {
		t.Fatalf("yield ttl=%d want=%d", c.YieldCacheTTLTicks, c.TickRateHz*5)
	}
	if c.StatsWindowTicks != c.DayTicks {
		t.Fatalf("stats window=%d want=%d", c.StatsWindowTicks, c.DayTicks)
	}

	if c.Care.WaterUsePerDay != 0.25 || c.Care.RecoveryPerDay != 2.0 || c.Care.HealthCriticalBelow != 20 {
		t.Fatalf("care defaults: %+v", c.Care)
	}
	if c.Drift.Relax != 0.15 || c.Drift.SeasonLengthDays != 91 {
		t.Fatalf("drift defaults: %+v", c.Drift)
	}

	// Drift cadence has no default: zero keeps climate drift off.
	if c.DriftEveryTicks != 0 {
		t.Fatalf("drift cadence=%d want=0", c.DriftEveryTicks)
	}
}

func TestFacilityConfig_ExplicitValuesSurvive(t *testing.T) {
	c := FacilityConfig{
		ID:               "canopy-2",
		TickRateHz:       20,
		DayTicks:         100,
		MaxPlants:        5,
		YieldVariability: 0.5,
	}
	c.applyDefaults()

	if c.ID != "canopy-2" || c.TickRateHz != 20 || c.DayTicks != 100 || c.MaxPlants != 5 {
		t.Fatalf("explicit values overwritten: %+v", c)
	}
	if c.YieldVariability != 0.5 {
		t.Fatalf("variability=%v want=0.5", c.YieldVariability)
	}
	if c.CacheEvictEveryTicks != 1200 {
		t.Fatalf("cache evict=%d want=1200", c.CacheEvictEveryTicks)
	}

	// Negative variability is the explicit way to disable it.
	c = FacilityConfig{YieldVariability: -1}
	c.applyDefaults()
	if c.YieldVariability != 0 {
		t.Fatalf("variability=%v want=0", c.YieldVariability)
	}
}
