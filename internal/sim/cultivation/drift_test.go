package cultivation

import (
	"math"
	"testing"
)

func TestOutdoorConditions_DeterministicBySeed(t *testing.T) {
	cfg := DriftConfig{}
	cfg.applyDefaults()

	a := newOutdoorModel(7, cfg)
	b := newOutdoorModel(7, cfg)
	c := newOutdoorModel(8, cfg)

	for _, day := range []float64{0, 1.5, 90, 182, 300} {
		ta, ha := a.conditions(day)
		tb, hb := b.conditions(day)
		if ta != tb || ha != hb {
			t.Fatalf("day %v: same seed diverged: %v/%v vs %v/%v", day, ta, ha, tb, hb)
		}
	}
	tc, _ := c.conditions(10)
	ta, _ := a.conditions(10)
	if tc == ta {
		t.Fatalf("different seeds produced identical weather")
	}
}

func TestOutdoorConditions_SeasonalSwing(t *testing.T) {
	cfg := DriftConfig{SeasonLengthDays: 91}
	cfg.applyDefaults()
	m := newOutdoorModel(1, cfg)

	// Year is 364 days; the sine peaks around half a year after the cold
	// start. Sample summer and winter midpoints.
	summer, _ := m.conditions(182)
	winter, _ := m.conditions(0)
	if summer <= winter {
		t.Fatalf("summer %v should be warmer than winter %v", summer, winter)
	}
	for day := 0.0; day < 364; day += 7 {
		temp, hum := m.conditions(day)
		if temp < -10 || temp > 40 {
			t.Fatalf("day %v: temperature %v out of plausible range", day, temp)
		}
		if hum < 0 || hum > 100 {
			t.Fatalf("day %v: humidity %v out of range", day, hum)
		}
	}
}

func TestSystemDrift_DisabledByZeroCadence(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{DriftEveryTicks: 0})
	z := f.zones.get(DefaultZoneID)
	before := z.Actual

	f.systemDrift(0)
	f.systemDrift(100)
	if z.Actual != before {
		t.Fatalf("drift ran while disabled: %+v", z.Actual)
	}
}

func TestSystemDrift_RelaxesTowardSetpoint(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{DriftEveryTicks: 1})
	z := f.zones.get(DefaultZoneID)

	// Knock the room far off its setpoint.
	z.Actual.TempC = z.Setpoint.TempC + 100
	z.Actual.CO2PPM = 0

	f.systemDrift(0)

	// CO2 relaxes purely toward the setpoint: 15% of the gap per pass.
	if math.Abs(z.Actual.CO2PPM-150) > 1e-9 {
		t.Fatalf("co2=%v want=150", z.Actual.CO2PPM)
	}
	// Temperature moves most of the way too; noise is small against a 100
	// degree excursion.
	if got := z.Actual.TempC - z.Setpoint.TempC; got > 90 || got < 0 {
		t.Fatalf("temp gap after drift=%v want shrunk below 90", got)
	}
	// Non-drifting channels snap to the setpoint.
	if z.Actual.LightDLI != z.Setpoint.LightDLI || z.Actual.PH != z.Setpoint.PH {
		t.Fatalf("static channels drifted: %+v", z.Actual)
	}
}

func TestSystemDrift_InsulationLimitsOutdoorLeak(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{
		DriftEveryTicks: 1,
		Drift: DriftConfig{
			Relax:            0.5,
			Leak:             1.0,
			NoiseAmpTemp:     0.1,
			NoiseAmpHumidity: 0.1,
		},
	})

	hot := DefaultEnvironment()
	hot.TempC = 40
	if err := f.CreateZone("sealed", "", hot, 1.0); err != nil {
		t.Fatalf("create sealed: %v", err)
	}
	if err := f.CreateZone("shed", "", hot, 0.0); err != nil {
		t.Fatalf("create shed: %v", err)
	}

	for tick := uint64(0); tick < 40; tick++ {
		f.systemDrift(tick)
	}

	sealed := f.zones.get("sealed").Actual.TempC
	shed := f.zones.get("shed").Actual.TempC

	// The sealed room holds its 40 degree setpoint; the uninsulated shed
	// is dragged toward outdoor winter weather.
	if math.Abs(sealed-40) > 2 {
		t.Fatalf("sealed room temp=%v want ~40", sealed)
	}
	if shed > 30 {
		t.Fatalf("shed temp=%v want pulled well below setpoint", shed)
	}
}
