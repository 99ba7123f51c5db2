package cultivation

import "canopy.sim/internal/sim/catalogs"

// Stage is a plant's position in the cultivation lifecycle. Stages advance
// strictly forward through the table below; Harvestable is terminal.
type Stage int

const (
	StageSeed Stage = iota
	StageGermination
	StageSeedling
	StageVegetative
	StagePreFlowering
	StageFlowering
	StageRipening
	StageHarvest
	StageHarvestable
)

var stageNames = [...]string{
	StageSeed:         "SEED",
	StageGermination:  "GERMINATION",
	StageSeedling:     "SEEDLING",
	StageVegetative:   "VEGETATIVE",
	StagePreFlowering: "PRE_FLOWERING",
	StageFlowering:    "FLOWERING",
	StageRipening:     "RIPENING",
	StageHarvest:      "HARVEST",
	StageHarvestable:  "HARVESTABLE",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "UNKNOWN"
	}
	return stageNames[s]
}

// StageFromString resolves a wire/journal stage name back to its Stage.
func StageFromString(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

// Next returns the stage that follows s, or false at the end of the line.
func (s Stage) Next() (Stage, bool) {
	if s < StageSeed || s >= StageHarvestable {
		return s, false
	}
	return s + 1, true
}

func (s Stage) Terminal() bool { return s >= StageHarvestable }

// HarvestReady reports whether the plant may be cut down at this stage.
func (s Stage) HarvestReady() bool { return s == StageHarvest || s == StageHarvestable }

var stageMultipliers = [...]float64{
	StageSeed:         0.1,
	StageGermination:  0.3,
	StageSeedling:     0.5,
	StageVegetative:   1.0,
	StagePreFlowering: 0.8,
	StageFlowering:    0.6,
	StageRipening:     0.2,
	StageHarvest:      0,
	StageHarvestable:  0,
}

// Multiplier scales the base growth rate for this stage. Dormant and
// post-harvest stages grow at (almost) zero.
func (s Stage) Multiplier() float64 {
	if s < 0 || int(s) >= len(stageMultipliers) {
		return 0
	}
	return stageMultipliers[s]
}

// StageRequirements describes what a stage demands: the optimal climate bands
// stress is measured against, the accumulated growth-days needed to complete
// the stage, and the wall-clock floor (in sim days) before it may be left.
type StageRequirements struct {
	Temp     Band
	Humidity Band
	CO2      Band

	ProgressDays float64
	MinDays      float64
}

var stageRequirements = [...]StageRequirements{
	StageSeed:         {Temp: Band{20, 28}, Humidity: Band{65, 80}, CO2: Band{600, 1200}, ProgressDays: 1, MinDays: 0.5},
	StageGermination:  {Temp: Band{21, 27}, Humidity: Band{65, 80}, CO2: Band{600, 1200}, ProgressDays: 2, MinDays: 1},
	StageSeedling:     {Temp: Band{20, 26}, Humidity: Band{60, 75}, CO2: Band{700, 1200}, ProgressDays: 7, MinDays: 3.5},
	StageVegetative:   {Temp: Band{20, 26}, Humidity: Band{55, 70}, CO2: Band{800, 1400}, ProgressDays: 21, MinDays: 10.5},
	StagePreFlowering: {Temp: Band{19, 25}, Humidity: Band{50, 65}, CO2: Band{800, 1400}, ProgressDays: 7, MinDays: 3.5},
	StageFlowering:    {Temp: Band{18, 24}, Humidity: Band{40, 55}, CO2: Band{800, 1200}, ProgressDays: 49, MinDays: 24.5},
	StageRipening:     {Temp: Band{17, 23}, Humidity: Band{40, 50}, CO2: Band{600, 1000}, ProgressDays: 7, MinDays: 3.5},
	StageHarvest:      {Temp: Band{17, 23}, Humidity: Band{40, 50}, CO2: Band{600, 1000}},
	StageHarvestable:  {Temp: Band{17, 23}, Humidity: Band{40, 50}, CO2: Band{600, 1000}},
}

// RequirementsFor returns the static requirements table entry for a stage.
// Strain-specific flowering length is applied by stageMachine, not here.
func RequirementsFor(s Stage) StageRequirements {
	if s < 0 || int(s) >= len(stageRequirements) {
		return StageRequirements{}
	}
	return stageRequirements[s]
}

// referenceBands is the climate band alerts are judged against. Vegetative is
// the widest-population stage, so its optimum is the facility baseline.
func referenceBands() StageRequirements {
	return stageRequirements[StageVegetative]
}

const (
	minHealthToAdvance = 30
	maxStressToAdvance = 0.8
)

// stageMachine resolves per-plant stage requirements, folding in the strain's
// flowering length where the catalog defines one.
type stageMachine struct {
	cats *catalogs.Catalogs
}

func (m stageMachine) requirementsFor(p *Plant) StageRequirements {
	req := RequirementsFor(p.Stage)
	if p.Stage != StageFlowering || m.cats == nil {
		return req
	}
	if def, ok := m.cats.Strains.ByID[p.StrainID]; ok && def.FloweringDays > 0 {
		req.ProgressDays = float64(def.FloweringDays)
		req.MinDays = float64(def.FloweringDays) / 2
	}
	return req
}

// canAdvance checks the guard conditions for a natural transition out of the
// plant's current stage. Forced transitions skip this entirely.
func (m stageMachine) canAdvance(p *Plant) bool {
	req := m.requirementsFor(p)
	if p.Progress < req.ProgressDays {
		return false
	}
	if p.DaysInStage < req.MinDays {
		return false
	}
	if p.Health < minHealthToAdvance {
		return false
	}
	if p.Stress > maxStressToAdvance {
		return false
	}
	return true
}
