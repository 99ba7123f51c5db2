package cultivation

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// lerp maps t in [0,1] onto [a,b]; t is clamped first.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*clamp01(t)
}
