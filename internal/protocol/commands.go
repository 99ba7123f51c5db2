package protocol

// Command ops accepted by the facility inbox.
const (
	OpSeed       = "SEED"
	OpWater      = "WATER"
	OpFeed       = "FEED"
	OpHarvest    = "HARVEST"
	OpForceStage = "FORCE_STAGE"
	OpCreateZone = "CREATE_ZONE"
	OpRemoveZone = "REMOVE_ZONE"
	OpSetZoneEnv = "SET_ZONE_ENV"
	OpMovePlant  = "MOVE_PLANT"
)

// CommandMsg is an externally submitted facility command (admin HTTP,
// tooling). Fields are op-specific; unused fields stay zero.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"` // echoed in the result
	Op              string `json:"op"`

	PlantID  string  `json:"plant_id,omitempty"`
	StrainID string  `json:"strain_id,omitempty"`
	ZoneID   string  `json:"zone_id,omitempty"`
	Name     string  `json:"name,omitempty"`
	Amount   float64 `json:"amount,omitempty"`

	Env *EnvPatch `json:"env,omitempty"`
}

// EnvPatch carries zone environment values for CREATE_ZONE / SET_ZONE_ENV.
// Pointers distinguish "leave unchanged" from explicit zeros.
type EnvPatch struct {
	TempC      *float64 `json:"temp_c,omitempty"`
	Humidity   *float64 `json:"humidity,omitempty"`
	CO2PPM     *float64 `json:"co2_ppm,omitempty"`
	LightDLI   *float64 `json:"light_dli,omitempty"`
	Airflow    *float64 `json:"airflow,omitempty"`
	PH         *float64 `json:"ph,omitempty"`
	EC         *float64 `json:"ec,omitempty"`
	Insulation *float64 `json:"insulation,omitempty"`
}

// CommandResult answers a CommandMsg.
type CommandResult struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Op              string `json:"op"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            uint64 `json:"tick"`

	// Op-specific payloads.
	PlantID string  `json:"plant_id,omitempty"`
	LotID   string  `json:"lot_id,omitempty"`
	YieldG  float64 `json:"yield_g,omitempty"`
	Quality float64 `json:"quality,omitempty"`
}
