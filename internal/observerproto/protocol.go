package observerproto

import "canopy.sim/internal/protocol"

// Version is the observer protocol version (separate from the command protocol).
const Version = "0.1"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
	TypeEvent     = "EVENT"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: stream per-plant detail for one zone.
	FocusZoneID string `json:"focus_zone_id,omitempty"`
	MaxPlants   int    `json:"max_plants,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string         `json:"protocol_version"`
	FacilityID      string         `json:"facility_id"`
	Tick            uint64         `json:"tick"`
	Params          FacilityParams `json:"facility_params"`
	StrainPalette   []string       `json:"strain_palette"`
}

type FacilityParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	DayTicks   int   `json:"day_ticks"`
	Seed       int64 `json:"seed"`
	MaxPlants  int   `json:"max_plants"`
}

// Server -> Client. Sent every tick on the tick channel (lossy: only the
// latest frame matters).
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Day float64 `json:"day"`

	Plants    int            `json:"plants"`
	ByStage   map[string]int `json:"by_stage"`
	AvgHealth float64        `json:"avg_health"`
	AvgStress float64        `json:"avg_stress"`

	Zones []ZoneState `json:"zones"`

	FocusZoneID string       `json:"focus_zone_id,omitempty"`
	FocusPlants []PlantState `json:"focus_plants,omitempty"`
}

type ZoneState struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Plants int    `json:"plants"`

	TempC    float64 `json:"temp_c"`
	Humidity float64 `json:"humidity"`
	CO2PPM   float64 `json:"co2_ppm"`
	LightDLI float64 `json:"light_dli"`

	AlertSeverity string   `json:"alert_severity,omitempty"`
	AlertIssues   []string `json:"alert_issues,omitempty"`
}

type PlantState struct {
	ID       string `json:"id"`
	StrainID string `json:"strain_id"`
	Stage    string `json:"stage"`

	Health   float64 `json:"health"`
	Stress   float64 `json:"stress"`
	Water    float64 `json:"water"`
	Nutrient float64 `json:"nutrient"`

	ProgressDays float64 `json:"progress_days"`
	AgeDays      float64 `json:"age_days"`
}

// Server -> Client. Domain events on the data channel, one frame per event.
type EventMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Event           protocol.Event `json:"event"`
}
