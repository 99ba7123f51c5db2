package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"canopy.sim/internal/protocol"
	"canopy.sim/internal/sim/cultivation"
)

// RemoteConfig wires a facility to a remote ingest endpoint (a collector that
// aggregates journals across facilities). Everything is best-effort: the
// local SQLite journal and JSONL logs stay authoritative.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	FacilityID    string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

type RemoteJournal struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	flushFail    atomic.Uint64
	queueDropped atomic.Uint64
}

type remoteEvent struct {
	Kind       string `json:"kind"`
	FacilityID string `json:"facility_id"`
	Payload    any    `json:"payload"`
}

type RemoteStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteJournal, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.FacilityID = strings.TrimSpace(cfg.FacilityID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty remote journal endpoint")
	}
	if cfg.FacilityID == "" {
		return nil, fmt.Errorf("empty facility id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	r := &RemoteJournal{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan remoteEvent, 32768),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()

	return r, nil
}

func (r *RemoteJournal) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		r.wg.Wait()
	})
	return nil
}

func (r *RemoteJournal) Stats() RemoteStats {
	if r == nil {
		return RemoteStats{}
	}
	return RemoteStats{
		QueueDepth:        len(r.ch),
		QueueCapacity:     cap(r.ch),
		FlushFailTotal:    r.flushFail.Load(),
		QueueDroppedTotal: r.queueDropped.Load(),
	}
}

func (r *RemoteJournal) WriteTick(entry cultivation.TickLogEntry) error {
	if r == nil || r.closed.Load() {
		return nil
	}
	r.enqueue(remoteEvent{Kind: "tick", FacilityID: r.cfg.FacilityID, Payload: entry})
	return nil
}

func (r *RemoteJournal) WriteAudit(ev protocol.Event) error {
	if r == nil || r.closed.Load() {
		return nil
	}
	r.enqueue(remoteEvent{Kind: "event", FacilityID: r.cfg.FacilityID, Payload: ev})
	return nil
}

func (r *RemoteJournal) enqueue(ev remoteEvent) {
	select {
	case r.ch <- ev:
	default:
		r.queueDropped.Add(1)
		r.printf("remote journal queue full; drop kind=%s facility=%s", ev.Kind, ev.FacilityID)
	}
}

func (r *RemoteJournal) loop() {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.sendBatch(batch); err != nil {
			r.flushFail.Add(1)
			r.printf("remote journal flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next flush attempt, but never let it
			// grow unbounded while the endpoint is down.
			if len(batch) > 4*r.cfg.BatchSize {
				dropped := len(batch) - r.cfg.BatchSize
				r.queueDropped.Add(uint64(dropped))
				batch = append(batch[:0], batch[dropped:]...)
			}
			return
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *RemoteJournal) sendBatch(events []remoteEvent) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, r.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if r.cfg.Token != "" {
			req.Header.Set("x-journal-token", r.cfg.Token)
		}

		resp, err := r.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (r *RemoteJournal) printf(format string, args ...any) {
	if r != nil && r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}
