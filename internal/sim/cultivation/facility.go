package cultivation

import (
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"canopy.sim/internal/protocol"
	"canopy.sim/internal/sim/catalogs"
)

// Facility is a single-threaded authoritative simulation of one grow
// facility. All state must be accessed only from the facility loop goroutine;
// callers on other goroutines go through the inbox or the published metrics.
type Facility struct {
	cfg  FacilityConfig
	cats *catalogs.Catalogs

	tick atomic.Uint64

	plants     map[string]*Plant
	plantOrder []string // insertion order; the batch cursor walks this
	zones      *zoneStore

	stages  stageMachine
	harvest *harvestCalculator
	outdoor *outdoorModel
	stats   *FacilityStats

	batchCursor   int
	lastEvictTick uint64

	inbox         chan CommandEnvelope
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	stop          chan struct{}

	nextPlantNum atomic.Uint64

	listeners []func(protocol.Event)

	tickLogger  TickLogger
	auditLogger AuditLogger
	logger      *log.Logger

	observers     map[string]*observerClient
	pendingEvents []protocol.Event

	harvestedLots  uint64
	harvestedGrams float64

	metrics atomic.Value // FacilityMetrics
}

// CommandEnvelope carries one external command into the loop. Resp, when
// non-nil, receives exactly one result; it must be buffered.
type CommandEnvelope struct {
	Cmd  protocol.CommandMsg
	Resp chan protocol.CommandResult
}

func New(cfg FacilityConfig, cats *catalogs.Catalogs) *Facility {
	cfg.applyDefaults()
	f := &Facility{
		cfg:           cfg,
		cats:          cats,
		plants:        map[string]*Plant{},
		zones:         newZoneStore(DefaultEnvironment()),
		stages:        stageMachine{cats: cats},
		harvest:       newHarvestCalculator(cats, cfg.Seed, uint64(cfg.YieldCacheTTLTicks)),
		outdoor:       newOutdoorModel(cfg.Seed, cfg.Drift),
		stats:         NewFacilityStats(uint64(cfg.StatsWindowTicks)/20, uint64(cfg.StatsWindowTicks)),
		inbox:         make(chan CommandEnvelope, 256),
		observerJoin:  make(chan ObserverJoinRequest, 8),
		observerSub:   make(chan ObserverSubscribeRequest, 8),
		observerLeave: make(chan string, 8),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
	}
	return f
}

func (f *Facility) ID() string {
	if f == nil {
		return ""
	}
	return f.cfg.ID
}

func (f *Facility) TickRateHz() int {
	if f == nil {
		return 0
	}
	return f.cfg.TickRateHz
}

func (f *Facility) Config() FacilityConfig {
	if f == nil {
		return FacilityConfig{}
	}
	return f.cfg
}

// CurrentTick is safe from any goroutine.
func (f *Facility) CurrentTick() uint64 { return f.tick.Load() }

func (f *Facility) Inbox() chan<- CommandEnvelope                { return f.inbox }
func (f *Facility) ObserverJoinChan() chan<- ObserverJoinRequest { return f.observerJoin }
func (f *Facility) ObserverLeaveChan() chan<- string             { return f.observerLeave }

func (f *Facility) SetTickLogger(l TickLogger)   { f.tickLogger = l }
func (f *Facility) SetAuditLogger(l AuditLogger) { f.auditLogger = l }
func (f *Facility) SetLogger(l *log.Logger)      { f.logger = l }

// AddListener registers an in-process event listener. Listeners run on the
// loop goroutine in registration order; keep them fast.
func (f *Facility) AddListener(fn func(protocol.Event)) {
	if fn == nil {
		return
	}
	f.listeners = append(f.listeners, fn)
}

func (f *Facility) logf(format string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Printf(format, args...)
	}
}

func (f *Facility) newPlantID() string {
	n := f.nextPlantNum.Add(1)
	return fmt.Sprintf("P%d", n)
}

// PlantSeed starts a new plant of the given strain in a zone ("" means the
// default zone) and returns its id.
func (f *Facility) PlantSeed(strainID, zoneID string) (string, error) {
	nowTick := f.tick.Load()
	known := false
	if f.cats != nil {
		_, known = f.cats.Strains.ByID[strainID]
	}
	if !known {
		f.stats.RecordDenied(nowTick)
		return "", fmt.Errorf("strain %s: %w", strainID, ErrNotFound)
	}
	if len(f.plants) >= f.cfg.MaxPlants {
		f.stats.RecordDenied(nowTick)
		return "", fmt.Errorf("max plants %d: %w", f.cfg.MaxPlants, ErrCapacity)
	}
	if zoneID == "" {
		zoneID = DefaultZoneID
	}
	p := &Plant{
		ID:                f.newPlantID(),
		StrainID:          strainID,
		Stage:             StageSeed,
		Health:            f.cfg.StartingHealth,
		Water:             1.0,
		Nutrient:          0.8,
		FlowerStartAge:    -1,
		PlantedTick:       nowTick,
		LastProcessedTick: nowTick,
	}
	if _, err := f.zones.assign(p.ID, zoneID); err != nil {
		f.stats.RecordDenied(nowTick)
		return "", err
	}
	p.ZoneID = normalizeZoneID(zoneID)
	f.plants[p.ID] = p
	f.plantOrder = append(f.plantOrder, p.ID)
	f.stats.RecordSeeded(nowTick)
	f.emit(f.eventPlantSeeded(nowTick, p))
	return p.ID, nil
}

func (f *Facility) livePlant(plantID string) (*Plant, error) {
	p := f.plants[plantID]
	if p == nil || p.Removable() {
		return nil, fmt.Errorf("plant %s: %w", plantID, ErrNotFound)
	}
	return p, nil
}

// WaterPlant tops up a plant's water level. Amount <= 0 uses the configured
// per-action dose.
func (f *Facility) WaterPlant(plantID string, amount float64) error {
	nowTick := f.tick.Load()
	p, err := f.livePlant(plantID)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return err
	}
	if amount <= 0 {
		amount = f.cfg.Care.WaterPerAction
	}
	p.Water = clamp01(p.Water + amount)
	f.emit(f.eventPlantWatered(nowTick, p))
	return nil
}

// FeedPlant tops up a plant's nutrient level. Amount <= 0 uses the configured
// per-action dose.
func (f *Facility) FeedPlant(plantID string, amount float64) error {
	nowTick := f.tick.Load()
	p, err := f.livePlant(plantID)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return err
	}
	if amount <= 0 {
		amount = f.cfg.Care.FeedPerAction
	}
	p.Nutrient = clamp01(p.Nutrient + amount)
	f.emit(f.eventPlantFed(nowTick, p))
	return nil
}

func (f *Facility) fitnessFor(p *Plant) float64 {
	z := f.zones.zoneOf(p.ID)
	if z == nil {
		return 0.5
	}
	return EnvironmentFitness(EnvironmentStress(z.Actual, f.stages.requirementsFor(p)))
}

// EstimateHarvest previews yield and quality for a plant from Seedling
// onward. Served from a short-lived cache.
func (f *Facility) EstimateHarvest(plantID string) (HarvestResult, error) {
	nowTick := f.tick.Load()
	p, err := f.livePlant(plantID)
	if err != nil {
		return HarvestResult{}, err
	}
	if p.Stage < StageSeedling {
		return HarvestResult{}, fmt.Errorf("plant %s in %s: %w", plantID, p.Stage, ErrWrongStage)
	}
	y, q := f.harvest.estimate(p, f.fitnessFor(p), f.cfg.YieldVariability, nowTick)
	res := HarvestResult{
		PlantID:    p.ID,
		StrainID:   p.StrainID,
		ZoneID:     p.ZoneID,
		YieldGrams: y,
		Quality:    q,
		AgeDays:    p.AgeDays,
		Tick:       nowTick,
		Timestamp:  time.Now().UTC(),
	}
	return res, nil
}

// HarvestPlant cuts down a harvest-ready plant, producing the final lot. The
// plant is marked harvested and removed from its zone; cleanup drops it from
// the roster on the next full batch pass.
func (f *Facility) HarvestPlant(plantID string) (HarvestResult, error) {
	nowTick := f.tick.Load()
	p, err := f.livePlant(plantID)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return HarvestResult{}, err
	}
	if !p.Stage.HarvestReady() {
		f.stats.RecordDenied(nowTick)
		return HarvestResult{}, fmt.Errorf("plant %s in %s: %w", plantID, p.Stage, ErrWrongStage)
	}
	res := f.harvest.finalize(p, f.fitnessFor(p), f.cfg.YieldVariability, nowTick, time.Now())
	p.Harvested = true

	if z := f.zones.zoneOf(p.ID); z != nil {
		z.HarvestedLots++
		z.HarvestedGrams += res.YieldGrams
	}
	f.zones.unassign(p.ID)
	f.harvestedLots++
	f.harvestedGrams += res.YieldGrams
	f.stats.RecordHarvested(nowTick)
	f.emit(f.eventHarvested(nowTick, res))
	return res, nil
}

// ForceAdvanceStage pushes a plant to its next stage regardless of progress
// or health guards. Terminal plants stay put.
func (f *Facility) ForceAdvanceStage(plantID string) (Stage, error) {
	nowTick := f.tick.Load()
	p, err := f.livePlant(plantID)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return 0, err
	}
	if _, ok := p.Stage.Next(); !ok {
		f.stats.RecordDenied(nowTick)
		return p.Stage, fmt.Errorf("plant %s in %s: %w", plantID, p.Stage, ErrWrongStage)
	}
	f.advanceStage(p, nowTick, true)
	return p.Stage, nil
}

// advanceStage performs the actual transition bookkeeping. Callers must have
// checked the guards already (or be forcing past them).
func (f *Facility) advanceStage(p *Plant, nowTick uint64, forced bool) {
	next, ok := p.Stage.Next()
	if !ok {
		return
	}
	from := p.Stage
	p.Stage = next
	p.Progress = 0
	p.DaysInStage = 0
	p.LastStageChangeTick = nowTick
	if next == StageFlowering && p.FlowerStartAge < 0 {
		p.FlowerStartAge = p.AgeDays
	}
	f.harvest.forget(p.ID)
	f.stats.RecordTransition(nowTick)
	f.emit(f.eventStageChanged(nowTick, p, from, forced))
}

// CreateZone adds a climate zone. Empty name defaults to the id.
func (f *Facility) CreateZone(id, name string, env Environment, insulation float64) error {
	nowTick := f.tick.Load()
	z, err := f.zones.create(id, name, env, insulation, nowTick)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return err
	}
	f.emit(f.eventZoneCreated(nowTick, z))
	return nil
}

// RemoveZone deletes a zone; its plants move to the default zone. The
// default zone itself is protected.
func (f *Facility) RemoveZone(id string) error {
	nowTick := f.tick.Load()
	moved, err := f.zones.remove(id)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return err
	}
	for _, pid := range moved {
		if p := f.plants[pid]; p != nil {
			p.ZoneID = DefaultZoneID
		}
	}
	f.emit(f.eventZoneRemoved(nowTick, normalizeZoneID(id), moved))
	return nil
}

func (f *Facility) SetZoneEnvironment(id string, env Environment) error {
	nowTick := f.tick.Load()
	z, err := f.zones.setEnvironment(id, env, nowTick)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return err
	}
	f.emit(f.eventZoneEnvSet(nowTick, z))
	return nil
}

// AssignPlantToZone moves a plant between zones. Membership is exclusive;
// the previous assignment is dropped first.
func (f *Facility) AssignPlantToZone(plantID, zoneID string) error {
	nowTick := f.tick.Load()
	p, err := f.livePlant(plantID)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return err
	}
	prev, err := f.zones.assign(plantID, zoneID)
	if err != nil {
		f.stats.RecordDenied(nowTick)
		return err
	}
	p.ZoneID = normalizeZoneID(zoneID)
	if prev != p.ZoneID {
		f.emit(f.eventPlantMoved(nowTick, p, prev))
	}
	return nil
}

// Zones returns zone ids in lexical order.
func (f *Facility) Zones() []string { return f.zones.sortedIDs() }

// ZoneInfo returns a copy of one zone's state.
func (f *Facility) ZoneInfo(id string) (Zone, bool) {
	z := f.zones.get(normalizeZoneID(id))
	if z == nil {
		return Zone{}, false
	}
	out := *z
	out.PlantIDs = append([]string(nil), z.PlantIDs...)
	if z.Alert != nil {
		a := *z.Alert
		a.Issues = append([]string(nil), z.Alert.Issues...)
		out.Alert = &a
	}
	return out, true
}

// PlantInfo returns a copy of one plant's state plus its stage name.
func (f *Facility) PlantInfo(id string) (Plant, bool) {
	p := f.plants[id]
	if p == nil {
		return Plant{}, false
	}
	return *p, true
}

func (f *Facility) PlantCount() int { return len(f.plants) }

// PlantIDs returns the live roster in insertion order.
func (f *Facility) PlantIDs() []string {
	return append([]string(nil), f.plantOrder...)
}

// byStageCounts tallies live plants per stage name.
func (f *Facility) byStageCounts() map[string]int {
	out := make(map[string]int, len(stageNames))
	for _, p := range f.plants {
		if p.Removable() {
			continue
		}
		out[p.Stage.String()]++
	}
	return out
}

func (f *Facility) healthStressAverages() (avgHealth, avgStress float64) {
	n := 0
	for _, p := range f.plants {
		if p.Removable() {
			continue
		}
		avgHealth += p.Health
		avgStress += p.Stress
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return avgHealth / float64(n), avgStress / float64(n)
}

// sortedPlants returns live plants ordered by id for stable external views.
func (f *Facility) sortedPlants() []*Plant {
	out := make([]*Plant, 0, len(f.plants))
	for _, p := range f.plants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
