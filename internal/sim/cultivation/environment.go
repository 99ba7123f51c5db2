package cultivation

// Environment is one zone's controllable climate state. Temperature is in
// degrees Celsius, humidity is relative percent (0..100), CO2 is ppm and
// light is daily light integral (mol/m2/day). Airflow, PH and EC ride along
// for substrate-facing systems and reports; they do not feed stress.
type Environment struct {
	TempC    float64 `json:"temp_c" yaml:"temp_c"`
	Humidity float64 `json:"humidity" yaml:"humidity"`
	CO2PPM   float64 `json:"co2_ppm" yaml:"co2_ppm"`
	LightDLI float64 `json:"light_dli" yaml:"light_dli"`
	Airflow  float64 `json:"airflow" yaml:"airflow"`
	PH       float64 `json:"ph" yaml:"ph"`
	EC       float64 `json:"ec" yaml:"ec"`
}

// DefaultEnvironment is the climate a freshly created zone starts from:
// a mild indoor room with lights sized for vegetative growth.
func DefaultEnvironment() Environment {
	return Environment{
		TempC:    24,
		Humidity: 60,
		CO2PPM:   1000,
		LightDLI: 30,
		Airflow:  0.5,
		PH:       6.0,
		EC:       1.6,
	}
}

func (e *Environment) clampRanges() {
	e.Humidity = clampFloat(e.Humidity, 0, 100)
	if e.CO2PPM < 0 {
		e.CO2PPM = 0
	}
	if e.LightDLI < 0 {
		e.LightDLI = 0
	}
	e.Airflow = clampFloat(e.Airflow, 0, 1)
	if e.PH < 0 {
		e.PH = 0
	} else if e.PH > 14 {
		e.PH = 14
	}
	if e.EC < 0 {
		e.EC = 0
	}
}

// Band is an inclusive optimal range for one environmental factor.
type Band struct {
	Min float64
	Max float64
}

func (b Band) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

// Distance is how far v sits outside the band; zero when inside.
func (b Band) Distance(v float64) float64 {
	if v < b.Min {
		return b.Min - v
	}
	if v > b.Max {
		return v - b.Max
	}
	return 0
}

func (b Band) widen(by float64) Band {
	return Band{Min: b.Min - by, Max: b.Max + by}
}
