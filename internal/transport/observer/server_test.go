package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"canopy.sim/internal/observerproto"
	"canopy.sim/internal/protocol"
	"canopy.sim/internal/sim/catalogs"
	"canopy.sim/internal/sim/cultivation"
)

func newTestServer(t *testing.T) (*cultivation.Facility, *httptest.Server) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	f := cultivation.New(cultivation.FacilityConfig{
		TickRateHz: 100,
		DayTicks:   100,
	}, cats)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	obs := NewServer(f, log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	mux.HandleFunc("/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/observer/ws", obs.WSHandler())

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return f, srv
}

func seedPlant(t *testing.T, f *cultivation.Facility, strainID string) string {
	t.Helper()
	resp := make(chan protocol.CommandResult, 1)
	f.Inbox() <- cultivation.CommandEnvelope{
		Cmd:  protocol.CommandMsg{Op: protocol.OpSeed, StrainID: strainID},
		Resp: resp,
	}
	select {
	case res := <-resp:
		if !res.OK {
			t.Fatalf("seed %s failed: %s %s", strainID, res.Code, res.Message)
		}
		return res.PlantID
	case <-time.After(2 * time.Second):
		t.Fatalf("seed %s: no command result", strainID)
		return ""
	}
}

func dialObserver(t *testing.T, srv *httptest.Server, sub observerproto.SubscribeMsg) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return b
}

// waitForFrame reads frames until one of the wanted type arrives.
func waitForFrame(t *testing.T, conn *websocket.Conn, wantType string) []byte {
	t.Helper()
	for i := 0; i < 500; i++ {
		b := readFrame(t, conn)
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(b, &base); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if base.Type == wantType {
			return b
		}
	}
	t.Fatalf("no %s frame arrived", wantType)
	return nil
}

func TestObserverBootstrap(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/observer/bootstrap")
	if err != nil {
		t.Fatalf("get bootstrap: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bootstrap status: got %d want 200", resp.StatusCode)
	}

	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode bootstrap: %v", err)
	}
	if boot.ProtocolVersion != observerproto.Version {
		t.Fatalf("bootstrap version: got %q want %q", boot.ProtocolVersion, observerproto.Version)
	}
	if boot.FacilityID != "facility-1" {
		t.Fatalf("bootstrap facility id: got %q", boot.FacilityID)
	}
	if boot.Params.DayTicks != 100 || boot.Params.TickRateHz != 100 {
		t.Fatalf("bootstrap params: got %+v", boot.Params)
	}
	if len(boot.StrainPalette) == 0 {
		t.Fatalf("bootstrap strain palette empty")
	}

	post, err := http.Post(srv.URL+"/observer/bootstrap", "application/json", nil)
	if err != nil {
		t.Fatalf("post bootstrap: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("bootstrap POST status: got %d want 405", post.StatusCode)
	}
}

func TestObserverEndpoints_LoopbackOnly(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	f := cultivation.New(cultivation.FacilityConfig{TickRateHz: 100, DayTicks: 100}, cats)
	obs := NewServer(f, log.New(io.Discard, "", 0))

	for _, tc := range []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bootstrap", obs.BootstrapHandler()},
		{"ws", obs.WSHandler()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "8.8.8.8:1234"
			rec := httptest.NewRecorder()
			tc.handler(rec, req)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("status: got %d want 403", rec.Code)
			}
		})
	}
}

func TestObserverStream_TickFrames(t *testing.T) {
	f, srv := newTestServer(t)
	plantID := seedPlant(t, f, "OG_KUSH")

	conn := dialObserver(t, srv, observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
	})

	var tick observerproto.TickMsg
	if err := json.Unmarshal(waitForFrame(t, conn, observerproto.TypeTick), &tick); err != nil {
		t.Fatalf("decode tick: %v", err)
	}
	if tick.Plants != 1 {
		t.Fatalf("tick plants: got %d want 1", tick.Plants)
	}
	if len(tick.Zones) != 1 || tick.Zones[0].ID != cultivation.DefaultZoneID {
		t.Fatalf("tick zones: got %+v", tick.Zones)
	}
	if tick.FocusZoneID != "" {
		t.Fatalf("unexpected focus before subscribe update: %q", tick.FocusZoneID)
	}

	// Re-subscribe with a focus zone; per-plant detail should appear.
	err := conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		FocusZoneID:     cultivation.DefaultZoneID,
		MaxPlants:       5,
	})
	if err != nil {
		t.Fatalf("write subscribe update: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("no focused tick frame arrived")
		}
		if err := json.Unmarshal(waitForFrame(t, conn, observerproto.TypeTick), &tick); err != nil {
			t.Fatalf("decode tick: %v", err)
		}
		if tick.FocusZoneID != "" {
			break
		}
	}
	if tick.FocusZoneID != cultivation.DefaultZoneID {
		t.Fatalf("focus zone: got %q want %q", tick.FocusZoneID, cultivation.DefaultZoneID)
	}
	if len(tick.FocusPlants) != 1 || tick.FocusPlants[0].ID != plantID {
		t.Fatalf("focus plants: got %+v want plant %s", tick.FocusPlants, plantID)
	}
	if tick.FocusPlants[0].StrainID != "OG_KUSH" {
		t.Fatalf("focus plant strain: got %q", tick.FocusPlants[0].StrainID)
	}
}

func TestObserverStream_DeliversEventFrames(t *testing.T) {
	f, srv := newTestServer(t)

	conn := dialObserver(t, srv, observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
	})

	// A tick frame proves the session is registered with the loop, so the
	// seed event below cannot slip past it.
	waitForFrame(t, conn, observerproto.TypeTick)

	plantID := seedPlant(t, f, "BLUE_DREAM")

	var ev observerproto.EventMsg
	if err := json.Unmarshal(waitForFrame(t, conn, observerproto.TypeEvent), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got := ev.Event.EventType(); got != protocol.EvPlantSeeded {
		t.Fatalf("event type: got %q want %q", got, protocol.EvPlantSeeded)
	}
	if got, _ := ev.Event["plant_id"].(string); got != plantID {
		t.Fatalf("event plant id: got %q want %q", got, plantID)
	}
}

func TestObserverStream_RejectsBadHandshake(t *testing.T) {
	_, srv := newTestServer(t)

	cases := []struct {
		name string
		msg  any
	}{
		{"wrong type", observerproto.SubscribeMsg{Type: "HELLO", ProtocolVersion: observerproto.Version}},
		{"wrong version", observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: "9.9"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer/ws"
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer conn.Close()
			if err := conn.WriteJSON(tc.msg); err != nil {
				t.Fatalf("write: %v", err)
			}
			_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			_, _, err = conn.ReadMessage()
			if err == nil {
				t.Fatalf("expected close, got a frame")
			}
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("close code: got %v want policy violation", err)
			}
		})
	}
}
