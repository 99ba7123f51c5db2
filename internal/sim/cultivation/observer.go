package cultivation

import (
	"encoding/json"

	"canopy.sim/internal/observerproto"
)

// ObserverJoinRequest registers a read-only observer session that receives:
// - per-tick facility state (tickOut, latest-wins)
// - domain event frames (dataOut, best-effort)
//
// All observer state is maintained by the facility loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	// Optional: stream per-plant detail for one zone.
	FocusZoneID string
	MaxPlants   int
}

// ObserverSubscribeRequest updates an existing observer session's settings.
type ObserverSubscribeRequest struct {
	SessionID string

	FocusZoneID string
	MaxPlants   int
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	focusZoneID string
	maxPlants   int
}

func (f *Facility) ObserverSubscribeChan() chan<- ObserverSubscribeRequest { return f.observerSub }

func (f *Facility) handleObserverJoin(req ObserverJoinRequest) {
	if f == nil || req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	// Replace existing session id if any (defensive).
	if old := f.observers[req.SessionID]; old != nil {
		close(old.tickOut)
		close(old.dataOut)
	}
	f.observers[req.SessionID] = &observerClient{
		id:          req.SessionID,
		tickOut:     req.TickOut,
		dataOut:     req.DataOut,
		focusZoneID: normalizeZoneID(req.FocusZoneID),
		maxPlants:   clampObserverPlants(req.MaxPlants),
	}
}

func (f *Facility) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := f.observers[req.SessionID]
	if c == nil {
		return
	}
	c.focusZoneID = normalizeZoneID(req.FocusZoneID)
	if req.MaxPlants > 0 {
		c.maxPlants = clampObserverPlants(req.MaxPlants)
	}
}

func (f *Facility) handleObserverLeave(sessionID string) {
	if sessionID == "" {
		return
	}
	c := f.observers[sessionID]
	if c == nil {
		return
	}
	delete(f.observers, sessionID)
	close(c.tickOut)
	close(c.dataOut)
}

func clampObserverPlants(v int) int {
	if v <= 0 {
		return 200
	}
	if v > 2000 {
		return 2000
	}
	return v
}

// stepObservers fans this tick's state and events out to observer sessions.
// Tick frames are latest-wins; event frames are best-effort and may drop
// under backpressure (the observer stream is a lossy read model, never a
// source of truth).
func (f *Facility) stepObservers(nowTick uint64) {
	if len(f.observers) == 0 {
		f.pendingEvents = f.pendingEvents[:0]
		return
	}

	zones := make([]observerproto.ZoneState, 0, len(f.zones.order))
	for _, id := range f.zones.order {
		z := f.zones.zones[id]
		if z == nil {
			continue
		}
		zs := observerproto.ZoneState{
			ID:       z.ID,
			Name:     z.Name,
			Plants:   len(z.PlantIDs),
			TempC:    z.Actual.TempC,
			Humidity: z.Actual.Humidity,
			CO2PPM:   z.Actual.CO2PPM,
			LightDLI: z.Actual.LightDLI,
		}
		if z.Alert != nil {
			zs.AlertSeverity = z.Alert.Severity.String()
			zs.AlertIssues = append([]string(nil), z.Alert.Issues...)
		}
		zones = append(zones, zs)
	}
	avgHealth, avgStress := f.healthStressAverages()

	base := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Day:             float64(nowTick) / float64(f.cfg.DayTicks),
		Plants:          len(f.plants),
		ByStage:         f.byStageCounts(),
		AvgHealth:       avgHealth,
		AvgStress:       avgStress,
		Zones:           zones,
	}

	for _, c := range f.observers {
		msg := base
		if c.focusZoneID != "" {
			if z := f.zones.get(c.focusZoneID); z != nil {
				msg.FocusZoneID = c.focusZoneID
				msg.FocusPlants = f.focusPlantStates(z, c.maxPlants)
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}

	for _, ev := range f.pendingEvents {
		b, err := json.Marshal(observerproto.EventMsg{
			Type:            observerproto.TypeEvent,
			ProtocolVersion: observerproto.Version,
			Event:           ev,
		})
		if err != nil {
			continue
		}
		for _, c := range f.observers {
			trySend(c.dataOut, b)
		}
	}
	f.pendingEvents = f.pendingEvents[:0]
}

func (f *Facility) focusPlantStates(z *Zone, max int) []observerproto.PlantState {
	out := make([]observerproto.PlantState, 0, len(z.PlantIDs))
	for _, pid := range z.PlantIDs {
		if len(out) >= max {
			break
		}
		p := f.plants[pid]
		if p == nil || p.Removable() {
			continue
		}
		out = append(out, observerproto.PlantState{
			ID:           p.ID,
			StrainID:     p.StrainID,
			Stage:        p.Stage.String(),
			Health:       p.Health,
			Stress:       p.Stress,
			Water:        p.Water,
			Nutrient:     p.Nutrient,
			ProgressDays: p.Progress,
			AgeDays:      p.AgeDays,
		})
	}
	return out
}

// StrainPalette returns the sorted strain id palette for observer bootstrap.
func (f *Facility) StrainPalette() []string {
	if f == nil || f.cats == nil {
		return nil
	}
	p := f.cats.Strains.Palette
	out := make([]string, len(p))
	copy(out, p)
	return out
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
