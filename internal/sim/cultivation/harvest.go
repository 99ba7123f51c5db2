package cultivation

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"canopy.sim/internal/sim/catalogs"
)

const (
	stressYieldFloor  = 0.3 // fully stressed plants keep 30% of yield
	yieldClampLowFrac = 0.1
	yieldClampHiFrac  = 3.0
)

// HarvestResult is the outcome of cutting down one plant: the lot that goes
// into inventory plus the grading that prices it. Estimates reuse the same
// shape with an empty LotID.
type HarvestResult struct {
	LotID    string `json:"lot_id,omitempty"`
	PlantID  string `json:"plant_id"`
	StrainID string `json:"strain_id"`
	ZoneID   string `json:"zone_id"`

	YieldGrams float64 `json:"yield_g"`
	Quality    float64 `json:"quality"`

	THCPct   float64  `json:"thc_pct"`
	CBDPct   float64  `json:"cbd_pct"`
	Terpenes []string `json:"terpenes,omitempty"`

	FloweringDays float64   `json:"flowering_days"`
	AgeDays       float64   `json:"age_days"`
	Tick          uint64    `json:"tick"`
	Timestamp     time.Time `json:"ts"`
}

type cachedYield struct {
	yieldGrams  float64
	quality     float64
	expiresTick uint64
}

// harvestCalculator computes yield and quality for estimates and final
// harvests, with a short per-plant cache so repeated queries inside one
// decision window do not redo the math.
type harvestCalculator struct {
	cats     *catalogs.Catalogs
	rng      *rand.Rand
	ttlTicks uint64

	cache map[string]cachedYield
}

func newHarvestCalculator(cats *catalogs.Catalogs, seed int64, ttlTicks uint64) *harvestCalculator {
	return &harvestCalculator{
		cats:     cats,
		rng:      rand.New(rand.NewSource(seed)),
		ttlTicks: ttlTicks,
		cache:    map[string]cachedYield{},
	}
}

// totalProgressDays is the growth-days a plant must accumulate from seed
// through the end of Ripening, with the strain's flowering length folded in.
func totalProgressDays(floweringDays float64) float64 {
	total := 0.0
	for s := StageSeed; s <= StageRipening; s++ {
		d := RequirementsFor(s).ProgressDays
		if s == StageFlowering && floweringDays > 0 {
			d = floweringDays
		}
		total += d
	}
	return total
}

// completionFraction is how much of the full grow the plant finished, 0..1.
// Harvest-ready plants are complete by definition.
func completionFraction(p *Plant, floweringDays float64) float64 {
	if p.Stage.HarvestReady() {
		return 1
	}
	total := totalProgressDays(floweringDays)
	if total <= 0 {
		return 1
	}
	done := 0.0
	for s := StageSeed; s <= StageRipening; s++ {
		d := RequirementsFor(s).ProgressDays
		if s == StageFlowering && floweringDays > 0 {
			d = floweringDays
		}
		if s < p.Stage {
			done += d
			continue
		}
		if s == p.Stage {
			if p.Progress < d {
				done += p.Progress
			} else {
				done += d
			}
		}
	}
	return clamp01(done / total)
}

func (h *harvestCalculator) strainFloweringDays(strainID string) float64 {
	if h.cats == nil {
		return 0
	}
	if def, ok := h.cats.Strains.ByID[strainID]; ok {
		return float64(def.FloweringDays)
	}
	return 0
}

// compute runs the full yield/quality formula for a plant in its current
// state. fitness is the plant's zone environment fitness at call time.
func (h *harvestCalculator) compute(p *Plant, fitness float64, variability float64) (yieldGrams, quality float64) {
	base := float64(catalogs.DefaultBaseYieldG)
	potential := 0.0
	haveGenetics := false
	if h.cats != nil {
		base = h.cats.BaseYieldGrams(p.StrainID)
		if def, ok := h.cats.Strains.ByID[p.StrainID]; ok {
			potential = def.GeneticPotential
			haveGenetics = true
		}
	}

	genMod := 1.0
	if haveGenetics {
		genMod = geneticModifier(potential)
	}
	stressMod := lerp(1.0, stressYieldFloor, p.Stress)
	completion := completionFraction(p, h.strainFloweringDays(p.StrainID))

	y := base * healthModifier(p.Health) * completion * environmentalModifier(fitness) * genMod * stressMod
	if variability > 0 {
		y *= 1 + (h.rng.Float64()*2-1)*variability
	}
	y = clampFloat(y, base*yieldClampLowFrac, base*yieldClampHiFrac)

	q := 100 * clamp01(p.Health/100*0.3+fitness*0.25+(1-p.Stress)*0.25+potential*0.2)
	return y, q
}

// estimate returns the plant's projected yield and quality, serving from the
// cache when a computation from the last few seconds is still fresh.
func (h *harvestCalculator) estimate(p *Plant, fitness float64, variability float64, nowTick uint64) (yieldGrams, quality float64) {
	if c, ok := h.cache[p.ID]; ok && nowTick < c.expiresTick {
		return c.yieldGrams, c.quality
	}
	y, q := h.compute(p, fitness, variability)
	h.cache[p.ID] = cachedYield{yieldGrams: y, quality: q, expiresTick: nowTick + h.ttlTicks}
	return y, q
}

func (h *harvestCalculator) forget(plantID string) {
	delete(h.cache, plantID)
}

// evict drops expired cache entries. Called on a coarse interval, not per
// tick.
func (h *harvestCalculator) evict(nowTick uint64) {
	for id, c := range h.cache {
		if nowTick >= c.expiresTick {
			delete(h.cache, id)
		}
	}
}

// finalize builds the full harvest record for a plant being cut down now,
// reusing a fresh cached computation when one exists.
func (h *harvestCalculator) finalize(p *Plant, fitness float64, variability float64, nowTick uint64, now time.Time) HarvestResult {
	y, q := h.estimate(p, fitness, variability, nowTick)
	h.forget(p.ID)

	res := HarvestResult{
		LotID:      uuid.NewString(),
		PlantID:    p.ID,
		StrainID:   p.StrainID,
		ZoneID:     p.ZoneID,
		YieldGrams: y,
		Quality:    q,
		AgeDays:    p.AgeDays,
		Tick:       nowTick,
		Timestamp:  now.UTC(),
	}
	if p.FlowerStartAge >= 0 {
		res.FloweringDays = p.AgeDays - p.FlowerStartAge
	}
	if h.cats != nil {
		if def, ok := h.cats.Strains.ByID[p.StrainID]; ok {
			// Potency scales with quality grade; profile tops out at the
			// strain's catalog numbers.
			grade := 0.5 + 0.5*q/100
			res.THCPct = def.Cannabinoids.THCPct * grade
			res.CBDPct = def.Cannabinoids.CBDPct * grade
			res.Terpenes = append([]string(nil), def.Terpenes...)
		}
	}
	return res
}
