package cultivation

import (
	"math"
	"testing"
)

func TestHealthModifier_Range(t *testing.T) {
	if got := healthModifier(0); math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("health 0: got %v want 0.1", got)
	}
	if got := healthModifier(100); math.Abs(got-1.2) > 1e-9 {
		t.Fatalf("health 100: got %v want 1.2", got)
	}
	if got := healthModifier(80); math.Abs(got-0.98) > 1e-9 {
		t.Fatalf("health 80: got %v want 0.98", got)
	}
	// Out-of-range health clamps instead of extrapolating.
	if got := healthModifier(150); math.Abs(got-1.2) > 1e-9 {
		t.Fatalf("health 150: got %v want 1.2", got)
	}
}

func TestEnvironmentalModifier_Range(t *testing.T) {
	if got := environmentalModifier(0); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("fitness 0: got %v want 0.5", got)
	}
	if got := environmentalModifier(0.5); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("fitness 0.5: got %v want 1.0", got)
	}
	if got := environmentalModifier(1); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("fitness 1: got %v want 1.5", got)
	}
}

func TestGeneticModifier_Range(t *testing.T) {
	if got := geneticModifier(0); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("potential 0: got %v want 0.5", got)
	}
	if got := geneticModifier(0.5); math.Abs(got-1.25) > 1e-9 {
		t.Fatalf("potential 0.5: got %v want 1.25", got)
	}
	if got := geneticModifier(1); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("potential 1: got %v want 2.0", got)
	}
	if got := geneticModifier(5); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("potential 5: got %v want 2.0 (clamped)", got)
	}
}

func TestGrowthRate_ComposesModifiers(t *testing.T) {
	// Vegetative multiplier is 1.0, perfect health contributes 1.2.
	got := GrowthRate(1.0, StageVegetative, 100, 1.0, 1.0)
	if math.Abs(got-1.2) > 1e-9 {
		t.Fatalf("vegetative perfect health: got %v want 1.2", got)
	}

	// Flowering at 0.6 with env and genetic boosts.
	got = GrowthRate(1.0, StageFlowering, 100, 1.5, 2.0)
	want := 0.6 * 1.2 * 1.5 * 2.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("flowering boosted: got %v want %v", got, want)
	}

	// Harvest stages do not grow.
	if got := GrowthRate(1.0, StageHarvest, 100, 1.5, 2.0); got != 0 {
		t.Fatalf("harvest stage: got %v want 0", got)
	}

	// A zero or negative global modifier falls back to neutral.
	a := GrowthRate(0, StageVegetative, 50, 1.0, 1.0)
	b := GrowthRate(1.0, StageVegetative, 50, 1.0, 1.0)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("zero global modifier: got %v want %v", a, b)
	}
}
