package cultivation

import (
	"context"
	"time"

	"canopy.sim/internal/protocol"
)

func (f *Facility) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(f.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []CommandEnvelope

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stop:
			return nil
		case req := <-f.observerJoin:
			f.handleObserverJoin(req)
		case req := <-f.observerSub:
			f.handleObserverSubscribe(req)
		case id := <-f.observerLeave:
			f.handleObserverLeave(id)
		case env := <-f.inbox:
			pending = append(pending, env)
		case <-ticker.C:
			f.step(pending)
			pending = pending[:0]
		}
	}
}

func (f *Facility) Stop() { close(f.stop) }

// StepOnce advances the facility by a single tick using the same ordering
// semantics as the server loop. Primarily for tests and deterministic tools.
func (f *Facility) StepOnce(cmds []CommandEnvelope) (tick uint64, digest string) {
	tick = f.tick.Load()
	f.step(cmds)
	return tick, f.stateDigest(tick)
}

// step runs one simulation tick. Order is fixed: queued commands first, then
// climate drift, then plant processing, then the alert sweep and cache
// eviction, then read-model fanout (stats, metrics, observers, tick log).
func (f *Facility) step(cmds []CommandEnvelope) {
	stepStart := time.Now()
	nowTick := f.tick.Load()

	for _, env := range cmds {
		f.applyCommand(env, nowTick)
	}

	f.systemDrift(nowTick)
	f.systemGrowth(nowTick)
	f.systemAlerts(nowTick)
	f.evictHarvestCache(nowTick)

	f.stepObservers(nowTick)

	if f.tickLogger != nil && f.cfg.TickLogEveryTicks > 0 && nowTick%uint64(f.cfg.TickLogEveryTicks) == 0 {
		avgHealth, avgStress := f.healthStressAverages()
		_ = f.tickLogger.WriteTick(TickLogEntry{
			Tick:         nowTick,
			Plants:       len(f.plants),
			ByStage:      f.byStageCounts(),
			AvgHealth:    avgHealth,
			AvgStress:    avgStress,
			Zones:        len(f.zones.zones),
			ActiveAlerts: f.activeAlerts(),
			Digest:       f.stateDigest(nowTick),
		})
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := f.tick.Add(1)
	f.publishMetrics(nextTick, stepMS)
}

func (f *Facility) publishMetrics(nextTick uint64, stepMS float64) {
	nowTick := nextTick - 1
	avgHealth, avgStress := f.healthStressAverages()

	sum := StatsBucket{}
	windowTicks := uint64(0)
	if f.stats != nil {
		sum = f.stats.Summarize(nowTick)
		windowTicks = f.stats.WindowTicks()
	}

	outTemp, outHum := 0.0, 0.0
	if f.outdoor != nil {
		outTemp, outHum = f.outdoor.conditions(float64(nowTick) / float64(f.cfg.DayTicks))
	}

	f.metrics.Store(FacilityMetrics{
		Tick:      nextTick,
		Plants:    len(f.plants),
		Zones:     len(f.zones.zones),
		Observers: len(f.observers),
		ByStage:   f.byStageCounts(),
		AvgHealth: avgHealth,
		AvgStress: avgStress,

		ActiveAlerts:   f.activeAlerts(),
		HarvestedLots:  f.harvestedLots,
		HarvestedGrams: f.harvestedGrams,

		QueueDepths: QueueDepths{
			Inbox:         len(f.inbox),
			ObserverJoin:  len(f.observerJoin),
			ObserverLeave: len(f.observerLeave),
		},

		StepMS:           stepMS,
		StatsWindowTicks: windowTicks,
		StatsWindow:      sum,

		OutdoorTempC:    outTemp,
		OutdoorHumidity: outHum,
	})
}

// applyCommand executes one queued external command and answers its reply
// channel. Failures also surface as COMMAND_RESULT events so rejected input
// shows up in the audit trail.
func (f *Facility) applyCommand(env CommandEnvelope, nowTick uint64) {
	cmd := env.Cmd
	res := protocol.CommandResult{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ID:              cmd.ID,
		Op:              cmd.Op,
		OK:              true,
		Tick:            nowTick,
	}

	var err error
	switch cmd.Op {
	case protocol.OpSeed:
		var pid string
		pid, err = f.PlantSeed(cmd.StrainID, cmd.ZoneID)
		res.PlantID = pid
	case protocol.OpWater:
		err = f.WaterPlant(cmd.PlantID, cmd.Amount)
		res.PlantID = cmd.PlantID
	case protocol.OpFeed:
		err = f.FeedPlant(cmd.PlantID, cmd.Amount)
		res.PlantID = cmd.PlantID
	case protocol.OpHarvest:
		var hr HarvestResult
		hr, err = f.HarvestPlant(cmd.PlantID)
		res.PlantID = cmd.PlantID
		if err == nil {
			res.LotID = hr.LotID
			res.YieldG = hr.YieldGrams
			res.Quality = hr.Quality
		}
	case protocol.OpForceStage:
		_, err = f.ForceAdvanceStage(cmd.PlantID)
		res.PlantID = cmd.PlantID
	case protocol.OpCreateZone:
		err = f.CreateZone(cmd.ZoneID, cmd.Name, envFromPatch(cmd.Env), insulationFromPatch(cmd.Env))
	case protocol.OpRemoveZone:
		err = f.RemoveZone(cmd.ZoneID)
	case protocol.OpSetZoneEnv:
		err = f.applySetZoneEnv(cmd)
	case protocol.OpMovePlant:
		err = f.AssignPlantToZone(cmd.PlantID, cmd.ZoneID)
		res.PlantID = cmd.PlantID
	default:
		err = ErrBadRequest
	}

	if err != nil {
		res.OK = false
		res.Code = errCode(err)
		res.Message = err.Error()
		f.emit(f.eventCommandResult(nowTick, cmd.Op, res))
	}

	if env.Resp != nil {
		select {
		case env.Resp <- res:
		default:
		}
	}
}

// applySetZoneEnv patches only the fields the command carries, starting from
// the zone's current setpoint.
func (f *Facility) applySetZoneEnv(cmd protocol.CommandMsg) error {
	z := f.zones.get(normalizeZoneID(cmd.ZoneID))
	if z == nil {
		return f.SetZoneEnvironment(cmd.ZoneID, envFromPatch(cmd.Env))
	}
	env := z.Setpoint
	applyPatch(&env, cmd.Env)
	return f.SetZoneEnvironment(cmd.ZoneID, env)
}

func envFromPatch(p *protocol.EnvPatch) Environment {
	env := DefaultEnvironment()
	applyPatch(&env, p)
	return env
}

func applyPatch(env *Environment, p *protocol.EnvPatch) {
	if p == nil {
		return
	}
	if p.TempC != nil {
		env.TempC = *p.TempC
	}
	if p.Humidity != nil {
		env.Humidity = *p.Humidity
	}
	if p.CO2PPM != nil {
		env.CO2PPM = *p.CO2PPM
	}
	if p.LightDLI != nil {
		env.LightDLI = *p.LightDLI
	}
	if p.Airflow != nil {
		env.Airflow = *p.Airflow
	}
	if p.PH != nil {
		env.PH = *p.PH
	}
	if p.EC != nil {
		env.EC = *p.EC
	}
}

func insulationFromPatch(p *protocol.EnvPatch) float64 {
	if p == nil || p.Insulation == nil {
		return 0.9
	}
	return *p.Insulation
}
