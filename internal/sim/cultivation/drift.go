package cultivation

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// outdoorModel produces the weather outside the facility walls: a seasonal
// sine over four seasons plus smooth noise so no two days read the same.
type outdoorModel struct {
	noise      opensimplex.Noise
	yearDays   float64
	ampTemp    float64
	ampHum     float64
	meanTempC  float64
	swingTempC float64
	meanHum    float64
	swingHum   float64
}

func newOutdoorModel(seed int64, cfg DriftConfig) *outdoorModel {
	return &outdoorModel{
		noise:      opensimplex.New(seed),
		yearDays:   float64(cfg.SeasonLengthDays) * 4,
		ampTemp:    cfg.NoiseAmpTemp,
		ampHum:     cfg.NoiseAmpHumidity,
		meanTempC:  15,
		swingTempC: 12,
		meanHum:    60,
		swingHum:   15,
	}
}

// conditions returns outdoor temperature and humidity for an absolute sim
// day. Deterministic for a given seed and day.
func (o *outdoorModel) conditions(day float64) (tempC, humidity float64) {
	phase := 2 * math.Pi * (day/o.yearDays - 0.25)
	tempC = o.meanTempC + o.swingTempC*math.Sin(phase) + o.ampTemp*o.noise.Eval2(day*0.7, 0)
	humidity = o.meanHum - o.swingHum*math.Sin(phase) + o.ampHum*o.noise.Eval2(0, day*0.7)
	humidity = clampFloat(humidity, 0, 100)
	return tempC, humidity
}

// systemDrift nudges each zone's actual climate: relax toward the setpoint,
// leak toward outdoor weather through imperfect insulation, and wobble with
// per-zone noise. Disabled when DriftEveryTicks is zero.
func (f *Facility) systemDrift(nowTick uint64) {
	if f.cfg.DriftEveryTicks <= 0 || f.outdoor == nil {
		return
	}
	if nowTick%uint64(f.cfg.DriftEveryTicks) != 0 {
		return
	}

	day := float64(nowTick) / float64(f.cfg.DayTicks)
	outTemp, outHum := f.outdoor.conditions(day)

	for i, id := range f.zones.order {
		z := f.zones.zones[id]
		if z == nil {
			continue
		}
		leak := (1 - clamp01(z.Insulation)) * f.cfg.Drift.Leak
		zoff := float64(i) * 17.31

		// Target = setpoint pulled toward outdoors by the leak, plus noise;
		// actual relaxes toward the target so the wobble stays bounded.
		tTarget := z.Setpoint.TempC + (outTemp-z.Setpoint.TempC)*leak +
			f.cfg.Drift.NoiseAmpTemp*f.outdoor.noise.Eval2(day*2.3, zoff)
		hTarget := z.Setpoint.Humidity + (outHum-z.Setpoint.Humidity)*leak +
			f.cfg.Drift.NoiseAmpHumidity*f.outdoor.noise.Eval2(zoff, day*2.3)

		relax := f.cfg.Drift.Relax
		z.Actual.TempC += (tTarget - z.Actual.TempC) * relax
		z.Actual.Humidity = clampFloat(z.Actual.Humidity+(hTarget-z.Actual.Humidity)*relax, 0, 100)
		z.Actual.CO2PPM += (z.Setpoint.CO2PPM - z.Actual.CO2PPM) * relax
		if z.Actual.CO2PPM < 0 {
			z.Actual.CO2PPM = 0
		}
		// Lights, airflow and substrate chemistry hold their setpoints.
		z.Actual.LightDLI = z.Setpoint.LightDLI
		z.Actual.Airflow = z.Setpoint.Airflow
		z.Actual.PH = z.Setpoint.PH
		z.Actual.EC = z.Setpoint.EC
	}
}
