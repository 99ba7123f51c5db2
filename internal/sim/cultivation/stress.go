package cultivation

// Stress tolerances: being this far outside the optimal band counts as fully
// stressed (1.0) for that factor. Light has no per-stage band; it is judged
// against a fixed target DLI instead.
const (
	tempStressTolerance     = 10  // degrees C
	humidityStressTolerance = 20  // percentage points
	co2StressTolerance      = 400 // ppm
	lightStressTolerance    = 20  // DLI
	lightTargetDLI          = 30
)

// StressBreakdown is the per-factor stress of one environment reading, each
// component normalized 0..1.
type StressBreakdown struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	CO2      float64 `json:"co2"`
	Light    float64 `json:"light"`
}

func (b StressBreakdown) Mean() float64 {
	return (b.Temp + b.Humidity + b.CO2 + b.Light) / 4
}

func factorStress(v float64, band Band, tolerance float64) float64 {
	if tolerance <= 0 {
		tolerance = 1
	}
	return clamp01(band.Distance(v) / tolerance)
}

func lightStress(dli float64) float64 {
	d := dli - lightTargetDLI
	if d < 0 {
		d = -d
	}
	return clamp01(d / lightStressTolerance)
}

// EnvironmentStress evaluates env against a stage's optimal bands. Pure: same
// inputs, same result, no state touched.
func EnvironmentStress(env Environment, req StageRequirements) StressBreakdown {
	return StressBreakdown{
		Temp:     factorStress(env.TempC, req.Temp, tempStressTolerance),
		Humidity: factorStress(env.Humidity, req.Humidity, humidityStressTolerance),
		CO2:      factorStress(env.CO2PPM, req.CO2, co2StressTolerance),
		Light:    lightStress(env.LightDLI),
	}
}

// CompositeStress folds a breakdown into the single stress level applied to a
// plant, scaled by the strain's stress sensitivity (clamped to 0.1..3 so a
// bad catalog value cannot zero out or explode stress).
func CompositeStress(b StressBreakdown, sensitivity float64) float64 {
	return clamp01(b.Mean() * clampFloat(sensitivity, 0.1, 3))
}

// EnvironmentFitness is the strain-independent suitability of an environment,
// 1 at a perfect climate and 0 at a fully hostile one. It deliberately skips
// the sensitivity multiplier: the room is the same room for every strain.
func EnvironmentFitness(b StressBreakdown) float64 {
	return clamp01(1 - b.Mean())
}
