package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"sort"
	"strings"
	"time"

	"canopy.sim/internal/protocol"
	"canopy.sim/internal/sim/cultivation"
	"canopy.sim/internal/transport/observer"
)

// muxConfig wires the HTTP surface over a running facility.
type muxConfig struct {
	Facility *cultivation.Facility
	Journals *journalRuntime
	Logger   *log.Logger

	EnableAdmin bool
	EnablePprof bool
}

func newMux(cfg muxConfig) *http.ServeMux {
	f := cfg.Facility
	facilityID := f.Config().ID

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := f.Metrics()
		tick := f.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP canopy_facility_tick Current facility tick.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_tick gauge\n")
		fmt.Fprintf(rw, "canopy_facility_tick{facility=%q} %d\n", facilityID, tick)

		fmt.Fprintf(rw, "# HELP canopy_facility_plants Current tracked plant count.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_plants gauge\n")
		fmt.Fprintf(rw, "canopy_facility_plants{facility=%q} %d\n", facilityID, m.Plants)

		fmt.Fprintf(rw, "# HELP canopy_facility_zones Current zone count.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_zones gauge\n")
		fmt.Fprintf(rw, "canopy_facility_zones{facility=%q} %d\n", facilityID, m.Zones)

		fmt.Fprintf(rw, "# HELP canopy_facility_observers Connected observer sessions.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_observers gauge\n")
		fmt.Fprintf(rw, "canopy_facility_observers{facility=%q} %d\n", facilityID, m.Observers)

		fmt.Fprintf(rw, "# HELP canopy_facility_plants_by_stage Plant count per growth stage.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_plants_by_stage gauge\n")
		stages := make([]string, 0, len(m.ByStage))
		for s := range m.ByStage {
			stages = append(stages, s)
		}
		sort.Strings(stages)
		for _, s := range stages {
			fmt.Fprintf(rw, "canopy_facility_plants_by_stage{facility=%q,stage=%q} %d\n", facilityID, s, m.ByStage[s])
		}

		fmt.Fprintf(rw, "# HELP canopy_facility_avg Population averages.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_avg gauge\n")
		fmt.Fprintf(rw, "canopy_facility_avg{facility=%q,metric=%q} %.3f\n", facilityID, "health", m.AvgHealth)
		fmt.Fprintf(rw, "canopy_facility_avg{facility=%q,metric=%q} %.3f\n", facilityID, "stress", m.AvgStress)

		fmt.Fprintf(rw, "# HELP canopy_facility_active_alerts Zones currently holding an environmental alert.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_active_alerts gauge\n")
		fmt.Fprintf(rw, "canopy_facility_active_alerts{facility=%q} %d\n", facilityID, m.ActiveAlerts)

		fmt.Fprintf(rw, "# HELP canopy_facility_harvested_lots_total Harvest lots finalized since start.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_harvested_lots_total counter\n")
		fmt.Fprintf(rw, "canopy_facility_harvested_lots_total{facility=%q} %d\n", facilityID, m.HarvestedLots)

		fmt.Fprintf(rw, "# HELP canopy_facility_harvested_grams_total Grams harvested since start.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_harvested_grams_total counter\n")
		fmt.Fprintf(rw, "canopy_facility_harvested_grams_total{facility=%q} %.1f\n", facilityID, m.HarvestedGrams)

		fmt.Fprintf(rw, "# HELP canopy_facility_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_queue_depth gauge\n")
		fmt.Fprintf(rw, "canopy_facility_queue_depth{facility=%q,queue=%q} %d\n", facilityID, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "canopy_facility_queue_depth{facility=%q,queue=%q} %d\n", facilityID, "observer_join", m.QueueDepths.ObserverJoin)
		fmt.Fprintf(rw, "canopy_facility_queue_depth{facility=%q,queue=%q} %d\n", facilityID, "observer_leave", m.QueueDepths.ObserverLeave)

		fmt.Fprintf(rw, "# HELP canopy_facility_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE canopy_facility_step_ms gauge\n")
		fmt.Fprintf(rw, "canopy_facility_step_ms{facility=%q} %.3f\n", facilityID, m.StepMS)

		fmt.Fprintf(rw, "# HELP canopy_stats_window Rolling window activity counters.\n")
		fmt.Fprintf(rw, "# TYPE canopy_stats_window gauge\n")
		fmt.Fprintf(rw, "canopy_stats_window{facility=%q,metric=%q} %d\n", facilityID, "seeded", m.StatsWindow.Seeded)
		fmt.Fprintf(rw, "canopy_stats_window{facility=%q,metric=%q} %d\n", facilityID, "harvested", m.StatsWindow.Harvested)
		fmt.Fprintf(rw, "canopy_stats_window{facility=%q,metric=%q} %d\n", facilityID, "died", m.StatsWindow.Died)
		fmt.Fprintf(rw, "canopy_stats_window{facility=%q,metric=%q} %d\n", facilityID, "transitions", m.StatsWindow.Transitions)
		fmt.Fprintf(rw, "canopy_stats_window{facility=%q,metric=%q} %d\n", facilityID, "denied", m.StatsWindow.Denied)
		fmt.Fprintf(rw, "canopy_stats_window{facility=%q,metric=%q} %d\n", facilityID, "alerts_raised", m.StatsWindow.AlertsRaised)
		fmt.Fprintf(rw, "canopy_stats_window{facility=%q,metric=%q} %d\n", facilityID, "alerts_cleared", m.StatsWindow.AlertsCleared)

		fmt.Fprintf(rw, "# HELP canopy_stats_window_ticks Rolling window size in ticks.\n")
		fmt.Fprintf(rw, "# TYPE canopy_stats_window_ticks gauge\n")
		fmt.Fprintf(rw, "canopy_stats_window_ticks{facility=%q} %d\n", facilityID, m.StatsWindowTicks)

		fmt.Fprintf(rw, "# HELP canopy_outdoor Outdoor weather the facility leaks toward.\n")
		fmt.Fprintf(rw, "# TYPE canopy_outdoor gauge\n")
		fmt.Fprintf(rw, "canopy_outdoor{facility=%q,metric=%q} %.2f\n", facilityID, "temp_c", m.OutdoorTempC)
		fmt.Fprintf(rw, "canopy_outdoor{facility=%q,metric=%q} %.2f\n", facilityID, "humidity", m.OutdoorHumidity)

		writeJournalMetrics(rw, cfg.Journals)
	})

	if cfg.EnableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				FacilityID string                      `json:"facility_id"`
				Tick       uint64                      `json:"tick"`
				Metrics    cultivation.FacilityMetrics `json:"metrics"`
			}{
				FacilityID: facilityID,
				Tick:       f.CurrentTick(),
				Metrics:    f.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/command", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			var cmd protocol.CommandMsg
			if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
				writeCommandError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "bad json: "+err.Error())
				return
			}
			if cmd.ProtocolVersion != "" && cmd.ProtocolVersion != protocol.Version {
				writeCommandError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "unsupported protocol_version")
				return
			}
			if strings.TrimSpace(cmd.Op) == "" {
				writeCommandError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "missing op")
				return
			}

			resp := make(chan protocol.CommandResult, 1)
			select {
			case f.Inbox() <- cultivation.CommandEnvelope{Cmd: cmd, Resp: resp}:
			case <-time.After(2 * time.Second):
				writeCommandError(rw, http.StatusServiceUnavailable, protocol.ErrInternal, "inbox saturated")
				return
			}
			select {
			case res := <-resp:
				rw.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(rw).Encode(res)
			case <-time.After(5 * time.Second):
				writeCommandError(rw, http.StatusServiceUnavailable, protocol.ErrInternal, "command timed out")
			case <-r.Context().Done():
			}
		})

		// Both observer handlers gate on loopback themselves.
		obs := observer.NewServer(f, cfg.Logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler())
	} else {
		cfg.Logger.Printf("admin endpoints disabled (CANOPY_ENABLE_ADMIN_HTTP=false)")
	}
	if cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		cfg.Logger.Printf("pprof endpoints disabled (CANOPY_ENABLE_PPROF_HTTP=false)")
	}

	return mux
}

func writeCommandError(rw http.ResponseWriter, status int, code, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(protocol.CommandResult{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		OK:              false,
		Code:            code,
		Message:         msg,
	})
}

func writeJournalMetrics(rw http.ResponseWriter, j *journalRuntime) {
	if j == nil {
		return
	}
	if j.sqlite != nil {
		s := j.sqlite.Stats()
		fmt.Fprintf(rw, "# HELP canopy_journal_sqlite_queue_depth SQLite journal write queue depth.\n")
		fmt.Fprintf(rw, "# TYPE canopy_journal_sqlite_queue_depth gauge\n")
		fmt.Fprintf(rw, "canopy_journal_sqlite_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP canopy_journal_sqlite_queue_capacity SQLite journal write queue capacity.\n")
		fmt.Fprintf(rw, "# TYPE canopy_journal_sqlite_queue_capacity gauge\n")
		fmt.Fprintf(rw, "canopy_journal_sqlite_queue_capacity %d\n", s.QueueCapacity)

		fmt.Fprintf(rw, "# HELP canopy_journal_sqlite_drop_total Journal writes dropped at a saturated queue.\n")
		fmt.Fprintf(rw, "# TYPE canopy_journal_sqlite_drop_total counter\n")
		fmt.Fprintf(rw, "canopy_journal_sqlite_drop_total{kind=%q} %d\n", "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "canopy_journal_sqlite_drop_total{kind=%q} %d\n", "event", s.DropEventTotal)
	}
	if j.remote != nil {
		s := j.remote.Stats()
		fmt.Fprintf(rw, "# HELP canopy_journal_remote_queue_depth Remote journal queue depth.\n")
		fmt.Fprintf(rw, "# TYPE canopy_journal_remote_queue_depth gauge\n")
		fmt.Fprintf(rw, "canopy_journal_remote_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP canopy_journal_remote_queue_capacity Remote journal queue capacity.\n")
		fmt.Fprintf(rw, "# TYPE canopy_journal_remote_queue_capacity gauge\n")
		fmt.Fprintf(rw, "canopy_journal_remote_queue_capacity %d\n", s.QueueCapacity)

		fmt.Fprintf(rw, "# HELP canopy_journal_remote_flush_fail_total Remote journal flush failures.\n")
		fmt.Fprintf(rw, "# TYPE canopy_journal_remote_flush_fail_total counter\n")
		fmt.Fprintf(rw, "canopy_journal_remote_flush_fail_total %d\n", s.FlushFailTotal)

		fmt.Fprintf(rw, "# HELP canopy_journal_remote_dropped_total Remote journal events dropped under sustained backpressure.\n")
		fmt.Fprintf(rw, "# TYPE canopy_journal_remote_dropped_total counter\n")
		fmt.Fprintf(rw, "canopy_journal_remote_dropped_total %d\n", s.QueueDroppedTotal)
	}
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
