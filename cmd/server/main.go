package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "canopy.sim/internal/persistence/log"
	"canopy.sim/internal/protocol"
	"canopy.sim/internal/sim/catalogs"
	"canopy.sim/internal/sim/cultivation"
	"canopy.sim/internal/sim/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		facilityID = flag.String("facility", "facility-1", "facility id")
		seed       = flag.Int64("seed", 1337, "simulation seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the local sqlite journal")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	facilityDir := filepath.Join(*dataDir, "facilities", *facilityID)
	_ = os.MkdirAll(facilityDir, 0o755)

	f := cultivation.New(facilityConfigFromTuning(*facilityID, *seed, tune), cats)
	f.SetLogger(logger)

	jr, err := buildJournalRuntime(facilityDir, *facilityID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("init journals: %v", err)
	}
	defer jr.Close()
	if jr.sqlite != nil {
		if err := jr.sqlite.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("journal catalogs: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(facilityDir)
	auditLog := persistlog.NewAuditLogger(facilityDir)
	defer tickLog.Close()
	defer auditLog.Close()

	tickSinks := multiTickLogger{tickLog}
	auditSinks := multiAuditLogger{auditLog}
	if jr.sqlite != nil {
		tickSinks = append(tickSinks, jr.sqlite)
		auditSinks = append(auditSinks, jr.sqlite)
	}
	if jr.remote != nil {
		tickSinks = append(tickSinks, jr.remote)
		auditSinks = append(auditSinks, jr.remote)
	}
	f.SetTickLogger(tickSinks)
	f.SetAuditLogger(auditSinks)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := f.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("facility stopped: %v", err)
		}
	}()

	mux := newMux(muxConfig{
		Facility:    f,
		Journals:    jr,
		Logger:      logger,
		EnableAdmin: envBool("CANOPY_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		EnablePprof: envBool("CANOPY_ENABLE_PPROF_HTTP", false),
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("facility %s listening on %s", *facilityID, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func facilityConfigFromTuning(id string, seed int64, tune tuning.Tuning) cultivation.FacilityConfig {
	return cultivation.FacilityConfig{
		ID:         id,
		TickRateHz: tune.TickRateHz,
		DayTicks:   tune.DayTicks,
		Seed:       seed,

		MaxPlants:      tune.MaxPlants,
		BatchBaseSize:  tune.BatchBaseSize,
		HighCapability: tune.HighCapability,

		GlobalGrowthModifier: tune.GlobalGrowthModifier,
		StartingHealth:       tune.StartingHealth,
		YieldVariability:     tune.YieldVariability,

		AlertEveryTicks:      tune.AlertEvery,
		DriftEveryTicks:      tune.DriftEvery,
		CacheEvictEveryTicks: tune.TickRateHz * tune.CacheEvictEverySeconds,
		YieldCacheTTLTicks:   tune.TickRateHz * tune.YieldCacheTTLSeconds,
		StatsWindowTicks:     tune.StatsWindowTicks,
		TickLogEveryTicks:    tune.TickLogEvery,

		Care: cultivation.CareConfig{
			WaterUsePerDay:         tune.PlantCare.WaterUsePerDay,
			NutrientUsePerDay:      tune.PlantCare.NutrientUsePerDay,
			WaterPerAction:         tune.PlantCare.WaterPerAction,
			FeedPerAction:          tune.PlantCare.FeedPerAction,
			RecoveryPerDay:         tune.PlantCare.RecoveryPerDay,
			StressDamagePerDay:     tune.PlantCare.StressDamagePerDay,
			DeficiencyDamagePerDay: tune.PlantCare.DeficiencyDamagePerDay,
			HealthCriticalBelow:    tune.PlantCare.HealthCriticalBelow,
		},
		Drift: cultivation.DriftConfig{
			Relax:            tune.Drift.Relax,
			Leak:             tune.Drift.Leak,
			NoiseAmpTemp:     tune.Drift.NoiseAmpTemp,
			NoiseAmpHumidity: tune.Drift.NoiseAmpHumidity,
			SeasonLengthDays: tune.Drift.SeasonLengthDays,
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// multiTickLogger fans tick summaries out to every configured sink. Sink
// errors stay local; the facility loop never sees them.
type multiTickLogger []cultivation.TickLogger

func (m multiTickLogger) WriteTick(e cultivation.TickLogEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteTick(e)
		}
	}
	return nil
}

type multiAuditLogger []cultivation.AuditLogger

func (m multiAuditLogger) WriteAudit(ev protocol.Event) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteAudit(ev)
		}
	}
	return nil
}
