package cultivation

// baseGrowthRate is one growth-day of progress per sim day under neutral
// conditions; every modifier below scales it.
const baseGrowthRate = 1.0

const (
	healthModifierMin = 0.1
	healthModifierMax = 1.2

	envModifierMin = 0.5
	envModifierMax = 1.5

	geneticModifierMin = 0.5
	geneticModifierMax = 2.0
)

// healthModifier maps health 0..100 onto a 0.1..1.2 growth scale. A dying
// plant still creeps along; a thriving one grows a fifth faster than baseline.
func healthModifier(health float64) float64 {
	return lerp(healthModifierMin, healthModifierMax, health/100)
}

// environmentalModifier maps environment fitness 0..1 onto 0.5..1.5.
func environmentalModifier(fitness float64) float64 {
	return lerp(envModifierMin, envModifierMax, fitness)
}

// geneticModifier maps a strain's genetic potential onto 0.5..2.0.
func geneticModifier(potential float64) float64 {
	return clampFloat(geneticModifierMin+potential*1.5, geneticModifierMin, geneticModifierMax)
}

// GrowthRate is the growth-days a plant accrues per sim day. envMod and
// genMod are pre-resolved modifiers; callers without an environment or
// genetics pass 1.0 for the missing one.
func GrowthRate(globalModifier float64, stage Stage, health, envMod, genMod float64) float64 {
	if globalModifier <= 0 {
		globalModifier = 1
	}
	r := baseGrowthRate * globalModifier * stage.Multiplier() * healthModifier(health) * envMod * genMod
	if r < 0 {
		return 0
	}
	return r
}
