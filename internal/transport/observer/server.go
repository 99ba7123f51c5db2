// Package observer serves the read-only observer surface: a bootstrap
// endpoint describing the facility and a WebSocket stream of TICK
// summary frames and EVENT frames after a SUBSCRIBE handshake.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"canopy.sim/internal/observerproto"
	"canopy.sim/internal/sim/cultivation"
)

// Tick frames are latest-wins (the facility drops stale frames on a full
// channel), so a single slot is enough. Event frames are best-effort.
const (
	tickQueueLen = 1
	dataQueueLen = 64
)

type Server struct {
	facility *cultivation.Facility
	log      *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(f *cultivation.Facility, logger *log.Logger) *Server {
	return &Server{
		facility: f,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.facility.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			FacilityID:      cfg.ID,
			Tick:            s.facility.CurrentTick(),
			Params: observerproto.FacilityParams{
				TickRateHz: cfg.TickRateHz,
				DayTicks:   cfg.DayTicks,
				Seed:       cfg.Seed,
				MaxPlants:  cfg.MaxPlants,
			},
			StrainPalette: s.facility.StrainPalette(),
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != observerproto.TypeSubscribe {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		if sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, tickQueueLen)
		dataOut := make(chan []byte, dataQueueLen)

		joinReq := cultivation.ObserverJoinRequest{
			SessionID:   sid,
			TickOut:     tickOut,
			DataOut:     dataOut,
			FocusZoneID: sub.FocusZoneID,
			MaxPlants:   sub.MaxPlants,
		}
		select {
		case s.facility.ObserverJoinChan() <- joinReq:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer func() {
			select {
			case s.facility.ObserverLeaveChan() <- sid:
			default:
				// Facility loop is stopping; nothing else to do.
			}
			s.log.Printf("observer %s disconnected", sid)
		}()
		s.log.Printf("observer %s connected (%s)", sid, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. Both channels are closed by the facility loop
		// when the session leaves or is replaced.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-tickOut:
					if !ok {
						writeErr <- nil
						return
					}
					if err := writeFrame(conn, b); err != nil {
						writeErr <- err
						return
					}
				case b, ok := <-dataOut:
					if !ok {
						writeErr <- nil
						return
					}
					if err := writeFrame(conn, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates to refocus the stream.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
				continue
			}
			req := cultivation.ObserverSubscribeRequest{
				SessionID:   sid,
				FocusZoneID: sub.FocusZoneID,
				MaxPlants:   sub.MaxPlants,
			}
			select {
			case s.facility.ObserverSubscribeChan() <- req:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func writeFrame(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
