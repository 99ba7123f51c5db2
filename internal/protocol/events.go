package protocol

// Event is a loosely-typed notification emitted by the facility loop.
// Every event carries at least "t" (tick) and "type".
type Event map[string]interface{}

// Event types emitted by the facility.
const (
	EvPlantSeeded    = "PLANT_SEEDED"
	EvPlantWatered   = "PLANT_WATERED"
	EvPlantFed       = "PLANT_FED"
	EvStageChanged   = "STAGE_CHANGED"
	EvHealthCritical = "HEALTH_CRITICAL"
	EvPlantDied      = "PLANT_DIED"
	EvHarvested      = "HARVESTED"
	EvZoneCreated    = "ZONE_CREATED"
	EvZoneRemoved    = "ZONE_REMOVED"
	EvZoneEnvSet     = "ZONE_ENV_SET"
	EvPlantMoved     = "PLANT_MOVED"
	EvEnvAlert       = "ENV_ALERT"
	EvAlertCleared   = "ALERT_CLEARED"
	EvCommandResult  = "COMMAND_RESULT"
)

// Tick returns the event's tick, or 0 when absent or oddly typed.
func (e Event) Tick() uint64 {
	switch v := e["t"].(type) {
	case uint64:
		return v
	case int:
		return uint64(v)
	case int64:
		return uint64(v)
	case float64:
		return uint64(v)
	}
	return 0
}

// EventType returns the event's "type" field, or "".
func (e Event) EventType() string {
	s, _ := e["type"].(string)
	return s
}
