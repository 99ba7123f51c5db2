package cultivation

// optimalBatchSize sizes the per-tick processing slice: doubled on capable
// hosts, doubled again for small populations (cheap to keep everyone fresh),
// halved for very large ones so a tick stays bounded.
func optimalBatchSize(base int, highCapability bool, population int) int {
	if base <= 0 {
		base = 10
	}
	size := base
	if highCapability {
		size *= 2
	}
	if population < 50 {
		size *= 2
	} else if population > 1000 {
		size /= 2
	}
	if size < 1 {
		size = 1
	}
	return size
}

// systemGrowth advances up to one batch of plants from the round-robin
// cursor. Completing a full pass over the roster triggers cleanup of dead and
// harvested entries.
func (f *Facility) systemGrowth(nowTick uint64) {
	n := len(f.plantOrder)
	if n == 0 {
		return
	}
	size := optimalBatchSize(f.cfg.BatchBaseSize, f.cfg.HighCapability, n)
	if size > n {
		size = n
	}

	wrapped := false
	for i := 0; i < size; i++ {
		if f.batchCursor >= n {
			f.batchCursor = 0
			wrapped = true
		}
		id := f.plantOrder[f.batchCursor]
		f.batchCursor++
		p := f.plants[id]
		if p == nil || p.Removable() {
			continue
		}
		f.processPlantSafe(p, nowTick)
	}
	if f.batchCursor >= n {
		f.batchCursor = 0
		wrapped = true
	}
	if wrapped {
		f.cleanupPlants()
	}
}

// processPlantSafe isolates per-plant faults: a panic while processing one
// plant is logged and that plant skipped, the rest of the batch continues.
func (f *Facility) processPlantSafe(p *Plant, nowTick uint64) {
	defer func() {
		if r := recover(); r != nil {
			f.logf("plant %s: processing panic recovered: %v", p.ID, r)
		}
	}()
	f.processPlant(p, nowTick)
}

// processPlant integrates one plant forward by the sim-days elapsed since its
// last visit, so batch size and visit frequency never change total growth.
func (f *Facility) processPlant(p *Plant, nowTick uint64) {
	elapsed := nowTick - p.LastProcessedTick
	if elapsed == 0 {
		return
	}
	days := float64(elapsed) / float64(f.cfg.DayTicks)
	p.LastProcessedTick = nowTick
	p.AgeDays += days
	p.DaysInStage += days

	activity := p.Stage.Multiplier()
	p.Water = clamp01(p.Water - f.cfg.Care.WaterUsePerDay*activity*days)
	p.Nutrient = clamp01(p.Nutrient - f.cfg.Care.NutrientUsePerDay*activity*days)

	z := f.zones.zoneOf(p.ID)
	req := f.stages.requirementsFor(p)
	envMod := 1.0
	if z != nil {
		br := EnvironmentStress(z.Actual, req)
		p.Stress = CompositeStress(br, f.strainSensitivity(p.StrainID))
		envMod = environmentalModifier(EnvironmentFitness(br))
	}

	f.updateHealth(p, nowTick, days)
	if p.Dead {
		return
	}

	genMod := 1.0
	if f.cats != nil {
		if def, ok := f.cats.Strains.ByID[p.StrainID]; ok {
			genMod = geneticModifier(def.GeneticPotential)
		}
	}
	rate := GrowthRate(f.cfg.GlobalGrowthModifier, p.Stage, p.Health, envMod, genMod)
	p.Progress += rate * days

	if f.stages.canAdvance(p) {
		f.advanceStage(p, nowTick, false)
	}
}

// updateHealth applies recovery and damage for the elapsed window and handles
// death and the low-health warning.
func (f *Facility) updateHealth(p *Plant, nowTick uint64, days float64) {
	waterDef := 0.0
	if p.Water < 0.2 {
		waterDef = (0.2 - p.Water) / 0.2
	}
	nutrientDef := 0.0
	if p.Nutrient < 0.2 {
		nutrientDef = (0.2 - p.Nutrient) / 0.2
	}
	deficiency := (waterDef + nutrientDef) / 2

	delta := 0.0
	if p.Stress < 0.3 && waterDef == 0 && nutrientDef == 0 {
		delta += f.cfg.Care.RecoveryPerDay
	}
	delta -= f.cfg.Care.StressDamagePerDay * p.Stress
	delta -= f.cfg.Care.DeficiencyDamagePerDay * deficiency

	p.Health = clampFloat(p.Health+delta*days, 0, 100)

	if p.Health <= 0 {
		p.Dead = true
		f.zones.unassign(p.ID)
		f.harvest.forget(p.ID)
		f.stats.RecordDied(nowTick)
		f.emit(f.eventPlantDied(nowTick, p))
		return
	}
	if p.Health < f.cfg.Care.HealthCriticalBelow {
		if !p.criticalNotified {
			p.criticalNotified = true
			f.emit(f.eventHealthCritical(nowTick, p))
		}
	} else if p.criticalNotified {
		p.criticalNotified = false
	}
}

// cleanupPlants compacts dead and harvested plants out of the roster. Runs
// after each full batch pass so the order slice never grows unbounded.
func (f *Facility) cleanupPlants() {
	kept := f.plantOrder[:0]
	for _, id := range f.plantOrder {
		p := f.plants[id]
		if p == nil {
			continue
		}
		if p.Removable() {
			delete(f.plants, id)
			f.harvest.forget(id)
			continue
		}
		kept = append(kept, id)
	}
	f.plantOrder = kept
	if f.batchCursor > len(f.plantOrder) {
		f.batchCursor = 0
	}
}

func (f *Facility) strainSensitivity(strainID string) float64 {
	if f.cats != nil {
		if def, ok := f.cats.Strains.ByID[strainID]; ok && def.StressSensitivity > 0 {
			return def.StressSensitivity
		}
	}
	return 1.0
}

// evictHarvestCache drops stale yield cache entries on a coarse interval.
func (f *Facility) evictHarvestCache(nowTick uint64) {
	if f.cfg.CacheEvictEveryTicks <= 0 {
		return
	}
	if nowTick-f.lastEvictTick < uint64(f.cfg.CacheEvictEveryTicks) {
		return
	}
	f.lastEvictTick = nowTick
	f.harvest.evict(nowTick)
}
