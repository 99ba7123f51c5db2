package cultivation

import "canopy.sim/internal/protocol"

// AuditLogger receives every domain event the facility emits, in emission
// order. Implementations must not block the loop; buffer or drop instead.
type AuditLogger interface {
	WriteAudit(ev protocol.Event) error
}

// TickLogEntry is the periodic facility summary written to the tick log.
type TickLogEntry struct {
	Tick         uint64         `json:"t"`
	Plants       int            `json:"plants"`
	ByStage      map[string]int `json:"by_stage"`
	AvgHealth    float64        `json:"avg_health"`
	AvgStress    float64        `json:"avg_stress"`
	Zones        int            `json:"zones"`
	ActiveAlerts int            `json:"active_alerts"`
	Digest       string         `json:"digest"`
}

// TickLogger receives periodic tick summaries.
type TickLogger interface {
	WriteTick(e TickLogEntry) error
}

// emit fans an event out to registered listeners (in registration order), the
// audit logger, and the per-step observer buffer.
func (f *Facility) emit(ev protocol.Event) {
	for _, l := range f.listeners {
		l(ev)
	}
	if f.auditLogger != nil {
		_ = f.auditLogger.WriteAudit(ev)
	}
	f.pendingEvents = append(f.pendingEvents, ev)
}

func (f *Facility) eventPlantSeeded(t uint64, p *Plant) protocol.Event {
	return protocol.Event{
		"t":         t,
		"type":      protocol.EvPlantSeeded,
		"plant_id":  p.ID,
		"strain_id": p.StrainID,
		"zone_id":   p.ZoneID,
	}
}

func (f *Facility) eventPlantWatered(t uint64, p *Plant) protocol.Event {
	return protocol.Event{
		"t":        t,
		"type":     protocol.EvPlantWatered,
		"plant_id": p.ID,
		"level":    p.Water,
	}
}

func (f *Facility) eventPlantFed(t uint64, p *Plant) protocol.Event {
	return protocol.Event{
		"t":        t,
		"type":     protocol.EvPlantFed,
		"plant_id": p.ID,
		"level":    p.Nutrient,
	}
}

func (f *Facility) eventStageChanged(t uint64, p *Plant, from Stage, forced bool) protocol.Event {
	return protocol.Event{
		"t":        t,
		"type":     protocol.EvStageChanged,
		"plant_id": p.ID,
		"zone_id":  p.ZoneID,
		"from":     from.String(),
		"to":       p.Stage.String(),
		"forced":   forced,
		"age_days": p.AgeDays,
	}
}

func (f *Facility) eventHealthCritical(t uint64, p *Plant) protocol.Event {
	return protocol.Event{
		"t":        t,
		"type":     protocol.EvHealthCritical,
		"plant_id": p.ID,
		"zone_id":  p.ZoneID,
		"health":   p.Health,
		"stage":    p.Stage.String(),
	}
}

func (f *Facility) eventPlantDied(t uint64, p *Plant) protocol.Event {
	return protocol.Event{
		"t":        t,
		"type":     protocol.EvPlantDied,
		"plant_id": p.ID,
		"zone_id":  p.ZoneID,
		"stage":    p.Stage.String(),
		"age_days": p.AgeDays,
	}
}

func (f *Facility) eventHarvested(t uint64, res HarvestResult) protocol.Event {
	return protocol.Event{
		"t":              t,
		"type":           protocol.EvHarvested,
		"plant_id":       res.PlantID,
		"lot_id":         res.LotID,
		"strain_id":      res.StrainID,
		"zone_id":        res.ZoneID,
		"yield_g":        res.YieldGrams,
		"quality":        res.Quality,
		"thc_pct":        res.THCPct,
		"cbd_pct":        res.CBDPct,
		"flowering_days": res.FloweringDays,
		"age_days":       res.AgeDays,
	}
}

func (f *Facility) eventZoneCreated(t uint64, z *Zone) protocol.Event {
	return protocol.Event{
		"t":       t,
		"type":    protocol.EvZoneCreated,
		"zone_id": z.ID,
		"name":    z.Name,
	}
}

func (f *Facility) eventZoneRemoved(t uint64, zoneID string, moved []string) protocol.Event {
	return protocol.Event{
		"t":          t,
		"type":       protocol.EvZoneRemoved,
		"zone_id":    zoneID,
		"reassigned": moved,
	}
}

func (f *Facility) eventZoneEnvSet(t uint64, z *Zone) protocol.Event {
	return protocol.Event{
		"t":       t,
		"type":    protocol.EvZoneEnvSet,
		"zone_id": z.ID,
		"env":     z.Setpoint,
	}
}

func (f *Facility) eventPlantMoved(t uint64, p *Plant, fromZone string) protocol.Event {
	return protocol.Event{
		"t":         t,
		"type":      protocol.EvPlantMoved,
		"plant_id":  p.ID,
		"from_zone": fromZone,
		"to_zone":   p.ZoneID,
	}
}

func (f *Facility) eventAlert(t uint64, z *Zone) protocol.Event {
	return protocol.Event{
		"t":        t,
		"type":     protocol.EvEnvAlert,
		"zone_id":  z.ID,
		"severity": z.Alert.Severity.String(),
		"issues":   z.Alert.Issues,
	}
}

func (f *Facility) eventAlertCleared(t uint64, z *Zone) protocol.Event {
	return protocol.Event{
		"t":       t,
		"type":    protocol.EvAlertCleared,
		"zone_id": z.ID,
	}
}

func (f *Facility) eventCommandResult(t uint64, op string, res protocol.CommandResult) protocol.Event {
	return protocol.Event{
		"t":       t,
		"type":    protocol.EvCommandResult,
		"op":      op,
		"ok":      res.OK,
		"code":    res.Code,
		"message": res.Message,
	}
}
