package cultivation

// Critical margins beyond the reference optimal band. A reading past these is
// an emergency for everything in the zone, not just slow growth.
const (
	alertTempMargin     = 5
	alertHumidityMargin = 10
	alertCO2LowMargin   = 200
	alertCO2HighMargin  = 300
)

// Severity ranks an environmental alert by how many factors are out of their
// critical band at once.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "UNKNOWN"
	}
	return severityNames[s]
}

// Alert is an active environmental excursion in one zone. A zone carries at
// most one alert; its issue list and severity are updated in place while the
// excursion persists and the alert is dropped when readings normalize.
type Alert struct {
	ZoneID     string   `json:"zone_id"`
	Issues     []string `json:"issues"`
	Severity   Severity `json:"severity"`
	RaisedTick uint64   `json:"raised_tick"`
}

// criticalIssues lists which factors of env sit outside the critical band.
// Issue codes are stable strings for journals and operator tooling.
func criticalIssues(env Environment) []string {
	ref := referenceBands()
	var issues []string

	t := ref.Temp.widen(alertTempMargin)
	if env.TempC < t.Min {
		issues = append(issues, "TEMP_LOW")
	} else if env.TempC > t.Max {
		issues = append(issues, "TEMP_HIGH")
	}

	h := ref.Humidity.widen(alertHumidityMargin)
	if env.Humidity < h.Min {
		issues = append(issues, "HUMIDITY_LOW")
	} else if env.Humidity > h.Max {
		issues = append(issues, "HUMIDITY_HIGH")
	}

	if env.CO2PPM < ref.CO2.Min-alertCO2LowMargin {
		issues = append(issues, "CO2_LOW")
	} else if env.CO2PPM > ref.CO2.Max+alertCO2HighMargin {
		issues = append(issues, "CO2_HIGH")
	}

	return issues
}

func severityFor(issues []string) Severity {
	switch {
	case len(issues) >= 3:
		return SeverityCritical
	case len(issues) == 2:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func sameIssues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// systemAlerts sweeps every zone's actual climate against the critical bands,
// raising, updating or clearing the zone's alert. Runs on its own cadence,
// not every tick.
func (f *Facility) systemAlerts(nowTick uint64) {
	if f.cfg.AlertEveryTicks > 0 && nowTick%uint64(f.cfg.AlertEveryTicks) != 0 {
		return
	}
	for _, id := range f.zones.order {
		z := f.zones.zones[id]
		if z == nil {
			continue
		}
		issues := criticalIssues(z.Actual)
		if len(issues) == 0 {
			if z.Alert != nil {
				z.Alert = nil
				f.stats.RecordAlertCleared(nowTick)
				f.emit(f.eventAlertCleared(nowTick, z))
			}
			continue
		}
		sev := severityFor(issues)
		if z.Alert == nil {
			z.Alert = &Alert{ZoneID: z.ID, Issues: issues, Severity: sev, RaisedTick: nowTick}
			f.stats.RecordAlertRaised(nowTick)
			f.emit(f.eventAlert(nowTick, z))
			continue
		}
		// Same excursion, refreshed readings. Keep RaisedTick, only
		// re-announce when the picture actually changed.
		if z.Alert.Severity != sev || !sameIssues(z.Alert.Issues, issues) {
			z.Alert.Issues = issues
			z.Alert.Severity = sev
			f.emit(f.eventAlert(nowTick, z))
		}
	}
}

// activeAlerts counts zones currently in alert.
func (f *Facility) activeAlerts() int {
	n := 0
	for _, z := range f.zones.zones {
		if z.Alert != nil {
			n++
		}
	}
	return n
}
