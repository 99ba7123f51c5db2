package cultivation

import (
	"encoding/json"
	"testing"

	"canopy.sim/internal/observerproto"
	"canopy.sim/internal/protocol"
)

func joinObserver(f *Facility, id, focusZone string, maxPlants int) (chan []byte, chan []byte) {
	tickOut := make(chan []byte, 4)
	dataOut := make(chan []byte, 16)
	f.handleObserverJoin(ObserverJoinRequest{
		SessionID:   id,
		TickOut:     tickOut,
		DataOut:     dataOut,
		FocusZoneID: focusZone,
		MaxPlants:   maxPlants,
	})
	return tickOut, dataOut
}

func decodeTick(t *testing.T, b []byte) observerproto.TickMsg {
	t.Helper()
	var msg observerproto.TickMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("decode tick frame: %v", err)
	}
	return msg
}

func TestObserver_ReceivesTickAndEventFrames(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{})
	tickOut, dataOut := joinObserver(f, "obs-1", "", 0)

	resp := make(chan protocol.CommandResult, 1)
	f.StepOnce([]CommandEnvelope{{
		Cmd:  protocol.CommandMsg{Op: protocol.OpSeed, StrainID: "OG_KUSH"},
		Resp: resp,
	}})
	<-resp

	var frame []byte
	select {
	case frame = <-tickOut:
	default:
		t.Fatalf("no tick frame delivered")
	}
	msg := decodeTick(t, frame)
	if msg.Type != "TICK" || msg.ProtocolVersion != observerproto.Version {
		t.Fatalf("frame header: %+v", msg)
	}
	if msg.Tick != 0 || msg.Plants != 1 {
		t.Fatalf("frame state: tick=%d plants=%d", msg.Tick, msg.Plants)
	}
	if len(msg.Zones) != 1 || msg.Zones[0].ID != DefaultZoneID || msg.Zones[0].Plants != 1 {
		t.Fatalf("frame zones: %+v", msg.Zones)
	}
	if msg.ByStage["SEED"] != 1 {
		t.Fatalf("frame stages: %v", msg.ByStage)
	}
	// No focus requested, no per-plant detail.
	if msg.FocusZoneID != "" || len(msg.FocusPlants) != 0 {
		t.Fatalf("unexpected focus payload: %+v", msg)
	}

	var evFrame []byte
	select {
	case evFrame = <-dataOut:
	default:
		t.Fatalf("no event frame delivered")
	}
	var evMsg observerproto.EventMsg
	if err := json.Unmarshal(evFrame, &evMsg); err != nil {
		t.Fatalf("decode event frame: %v", err)
	}
	if evMsg.Type != "EVENT" || evMsg.Event.EventType() != protocol.EvPlantSeeded {
		t.Fatalf("event frame: %+v", evMsg)
	}
}

func TestObserver_FocusZonePlantDetail(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{})
	for i := 0; i < 3; i++ {
		if _, err := f.PlantSeed("BLUE_DREAM", ""); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	tickOut, _ := joinObserver(f, "obs-1", "DEFAULT", 2)

	f.StepOnce(nil)

	msg := decodeTick(t, <-tickOut)
	if msg.FocusZoneID != DefaultZoneID {
		t.Fatalf("focus zone=%q want default (normalized)", msg.FocusZoneID)
	}
	// MaxPlants caps the detail list.
	if len(msg.FocusPlants) != 2 {
		t.Fatalf("focus plants=%d want=2", len(msg.FocusPlants))
	}
	ps := msg.FocusPlants[0]
	if ps.ID == "" || ps.StrainID != "BLUE_DREAM" || ps.Stage != "SEED" {
		t.Fatalf("plant state: %+v", ps)
	}
}

func TestObserver_SubscribeUpdatesFocus(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{})
	if _, err := f.PlantSeed("OG_KUSH", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tickOut, _ := joinObserver(f, "obs-1", "", 0)

	f.StepOnce(nil)
	if msg := decodeTick(t, <-tickOut); len(msg.FocusPlants) != 0 {
		t.Fatalf("unexpected focus before subscribe")
	}

	f.handleObserverSubscribe(ObserverSubscribeRequest{SessionID: "obs-1", FocusZoneID: "default", MaxPlants: 10})
	f.StepOnce(nil)
	if msg := decodeTick(t, <-tickOut); len(msg.FocusPlants) != 1 {
		t.Fatalf("focus not applied after subscribe: %+v", msg)
	}

	// Unknown session ids are ignored.
	f.handleObserverSubscribe(ObserverSubscribeRequest{SessionID: "ghost", FocusZoneID: "default"})
}

func TestObserver_TickFramesAreLatestWins(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{})
	tickOut := make(chan []byte, 1)
	dataOut := make(chan []byte, 1)
	f.handleObserverJoin(ObserverJoinRequest{SessionID: "slow", TickOut: tickOut, DataOut: dataOut})

	f.StepOnce(nil)
	f.StepOnce(nil)
	f.StepOnce(nil)

	// A slow reader sees the newest frame, not a backlog.
	msg := decodeTick(t, <-tickOut)
	if msg.Tick != 2 {
		t.Fatalf("frame tick=%d want=2 (latest)", msg.Tick)
	}
	select {
	case extra := <-tickOut:
		t.Fatalf("stale frame left behind: %s", extra)
	default:
	}
}

func TestObserver_JoinReplaceAndLeave(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{})

	oldTick, oldData := joinObserver(f, "obs-1", "", 0)
	newTick, _ := joinObserver(f, "obs-1", "", 0)

	// The replaced session's channels are closed.
	if _, ok := <-oldTick; ok {
		t.Fatalf("old tick channel still open")
	}
	if _, ok := <-oldData; ok {
		t.Fatalf("old data channel still open")
	}
	if len(f.observers) != 1 {
		t.Fatalf("observers=%d want=1", len(f.observers))
	}

	f.handleObserverLeave("obs-1")
	if _, ok := <-newTick; ok {
		t.Fatalf("left session channel still open")
	}
	if len(f.observers) != 0 {
		t.Fatalf("observers=%d want=0", len(f.observers))
	}

	// Leaving twice or with an unknown id is harmless.
	f.handleObserverLeave("obs-1")
	f.handleObserverLeave("")

	// Steps with no observers still run and drop buffered events.
	if _, err := f.PlantSeed("OG_KUSH", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.StepOnce(nil)
	if len(f.pendingEvents) != 0 {
		t.Fatalf("pending events not drained: %d", len(f.pendingEvents))
	}
}

func TestStrainPalette_SortedCopy(t *testing.T) {
	f := newTestFacility(t, FacilityConfig{})
	p := f.StrainPalette()
	if len(p) != 6 {
		t.Fatalf("palette=%v want 6 strains", p)
	}
	for i := 1; i < len(p); i++ {
		if p[i-1] >= p[i] {
			t.Fatalf("palette not sorted: %v", p)
		}
	}
	p[0] = "tampered"
	if f.StrainPalette()[0] == "tampered" {
		t.Fatalf("palette aliases internal state")
	}
}
