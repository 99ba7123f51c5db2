// Command growbot is a headless caretaker for a running facility. It
// follows the observer stream and keeps a zone stocked through the admin
// command endpoint: seeds up to a target population, waters and feeds
// plants that run low, and cuts down whatever reaches harvest.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"canopy.sim/internal/observerproto"
	"canopy.sim/internal/protocol"
)

const (
	lowWater    = 0.35
	lowNutrient = 0.35
)

func main() {
	var (
		baseURL   = flag.String("base", "http://localhost:8080", "server base url")
		zoneID    = flag.String("zone", "default", "zone to tend")
		plants    = flag.Int("plants", 4, "plant population to maintain")
		careEvery = flag.Uint64("care_every", 100, "ticks between care passes")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[growbot] ", log.LstdFlags|log.Lmicroseconds)

	b := &bot{
		base:      strings.TrimRight(*baseURL, "/"),
		zoneID:    *zoneID,
		plants:    *plants,
		careEvery: *careEvery,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	boot, err := b.bootstrap()
	if err != nil {
		logger.Fatalf("bootstrap: %v", err)
	}
	if len(boot.StrainPalette) == 0 {
		logger.Fatalf("bootstrap: empty strain palette")
	}
	b.palette = boot.StrainPalette
	logger.Printf("facility %s at tick %d, %d strains available",
		boot.FacilityID, boot.Tick, len(boot.StrainPalette))

	wsURL := "ws" + strings.TrimPrefix(b.base, "http") + "/admin/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		FocusZoneID:     b.zoneID,
		MaxPlants:       200,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("stream closed: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case observerproto.TypeTick:
			var tick observerproto.TickMsg
			if err := json.Unmarshal(msg, &tick); err != nil {
				continue
			}
			b.handleTick(&tick)

		case observerproto.TypeEvent:
			var ev observerproto.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			switch ev.Event.EventType() {
			case protocol.EvPlantDied:
				logger.Printf("lost plant %v in zone %v", ev.Event["plant_id"], ev.Event["zone_id"])
			case protocol.EvEnvAlert:
				logger.Printf("alert in zone %v: %v %v", ev.Event["zone_id"], ev.Event["severity"], ev.Event["issues"])
			}
		}
	}
}

type bot struct {
	base      string
	zoneID    string
	plants    int
	careEvery uint64

	http    *http.Client
	log     *log.Logger
	rng     *rand.Rand
	palette []string

	lastCareTick uint64
	nextID       uint64
}

func (b *bot) bootstrap() (observerproto.BootstrapResponse, error) {
	var boot observerproto.BootstrapResponse
	resp, err := b.http.Get(b.base + "/admin/v1/observer/bootstrap")
	if err != nil {
		return boot, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return boot, fmt.Errorf("status %d", resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(&boot)
	return boot, err
}

func (b *bot) handleTick(tick *observerproto.TickMsg) {
	if tick.FocusZoneID != b.zoneID {
		return
	}
	if tick.Tick < b.lastCareTick+b.careEvery {
		return
	}
	b.lastCareTick = tick.Tick

	growing := 0
	for _, p := range tick.FocusPlants {
		if p.Stage == "HARVEST" || p.Stage == "HARVESTABLE" {
			res := b.post(protocol.CommandMsg{Op: protocol.OpHarvest, PlantID: p.ID})
			if res.OK {
				b.log.Printf("harvested %s (%s): %.1f g, quality %.1f", p.ID, p.StrainID, res.YieldG, res.Quality)
			}
			continue
		}
		growing++
		if p.Water < lowWater {
			b.post(protocol.CommandMsg{Op: protocol.OpWater, PlantID: p.ID})
		}
		if p.Nutrient < lowNutrient {
			b.post(protocol.CommandMsg{Op: protocol.OpFeed, PlantID: p.ID})
		}
	}

	for i := growing; i < b.plants; i++ {
		strain := b.palette[b.rng.Intn(len(b.palette))]
		res := b.post(protocol.CommandMsg{Op: protocol.OpSeed, StrainID: strain, ZoneID: b.zoneID})
		if res.OK {
			b.log.Printf("seeded %s (%s)", res.PlantID, strain)
		} else {
			b.log.Printf("seed %s refused: %s %s", strain, res.Code, res.Message)
			break
		}
	}
}

// post sends one command to the admin endpoint and returns its result.
// Transport failures come back as a not-OK result so care passes keep going.
func (b *bot) post(cmd protocol.CommandMsg) protocol.CommandResult {
	b.nextID++
	cmd.Type = protocol.TypeCommand
	cmd.ProtocolVersion = protocol.Version
	cmd.ID = fmt.Sprintf("B%d", b.nextID)

	body, err := json.Marshal(cmd)
	if err != nil {
		return protocol.CommandResult{Code: protocol.ErrInternal, Message: err.Error()}
	}
	resp, err := b.http.Post(b.base+"/admin/v1/command", "application/json", bytes.NewReader(body))
	if err != nil {
		b.log.Printf("%s %s: %v", cmd.Op, cmd.PlantID, err)
		return protocol.CommandResult{Code: protocol.ErrInternal, Message: err.Error()}
	}
	defer resp.Body.Close()

	var res protocol.CommandResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return protocol.CommandResult{Code: protocol.ErrInternal, Message: err.Error()}
	}
	if !res.OK && res.Code != "" && cmd.Op != protocol.OpSeed {
		b.log.Printf("%s %s refused: %s %s", cmd.Op, cmd.PlantID, res.Code, res.Message)
	}
	return res
}
