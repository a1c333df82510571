// Command oakbridged is the camera backend: it opens a device (or a
// simulated one), runs the configured pipeline and streams frames to the
// viewer over the log sink, while a websocket control API drives pipeline
// and subscription changes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oakview/oakbridge/internal/api"
	"github.com/oakview/oakbridge/internal/config"
	"github.com/oakview/oakbridge/internal/db"
	"github.com/oakview/oakbridge/internal/device"
	"github.com/oakview/oakbridge/internal/device/sim"
	"github.com/oakview/oakbridge/internal/frames"
	"github.com/oakview/oakbridge/internal/logsink"
	"github.com/oakview/oakbridge/internal/relay"
	"github.com/oakview/oakbridge/internal/store"
	"github.com/oakview/oakbridge/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file")
	simMode    = flag.Bool("sim", false, "Use simulated devices instead of real hardware")
	listen     = flag.String("listen", "", "Websocket control API listen address")
	sinkListen = flag.String("grpc-listen", "", "Log sink gRPC listen address")
	dbPath     = flag.String("db", "", "Session database path")
)

func main() {
	flag.Parse()
	log.Printf("[Main] %s starting", version.String())

	cfg := loadConfig()

	sessionDB, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("[Main] failed to open session database: %v", err)
	}
	defer sessionDB.Close()

	var registry device.Registry
	if cfg.GetSimMode() {
		registry = sim.NewRegistry(cfg.GetSimDevices()...)
		log.Printf("[Main] sim mode, devices: %v", cfg.GetSimDevices())
	} else {
		// Real hardware needs the vendor SDK shim, which only ships on
		// device images. Everywhere else run against the simulator.
		log.Fatal("[Main] real camera support not built in, run with -sim")
	}
	manager := device.NewManager(registry)

	publisher := logsink.NewPublisher(logsink.Config{
		ListenAddr:    cfg.GetLogSinkAddr(),
		StatsInterval: cfg.GetStatsInterval(),
	})
	if err := publisher.Start(); err != nil {
		log.Fatalf("[Main] failed to start log sink: %v", err)
	}
	defer publisher.Stop()

	st := store.New()
	frameRelay := relay.New(st, logsink.NewLogger(publisher), manager.Intrinsics)
	frameRelay.SetIMURecorder(func(s frames.IMUSample, q [4]float64) {
		err := sessionDB.RecordIMUSample(db.IMUSampleRow{
			Timestamp: s.Timestamp,
			AccelX:    s.Accel.X, AccelY: s.Accel.Y, AccelZ: s.Accel.Z,
			GyroX: s.Gyro.X, GyroY: s.Gyro.Y, GyroZ: s.Gyro.Z,
			QuatW: q[0], QuatX: q[1], QuatY: q[2], QuatZ: q[3],
		})
		if err != nil {
			log.Printf("[Main] failed to record IMU sample: %v", err)
		}
	})

	st.OnListDevices = manager.List
	st.OnSelectDevice = func(id string) (bool, string, *device.Properties) {
		ok, message, props := manager.Select(id)
		if ok && id != "" {
			if err := sessionDB.RecordDeviceSeen(id); err != nil {
				log.Printf("[Main] failed to record device: %v", err)
			}
		}
		return ok, message, props
	}
	st.OnUpdatePipeline = func() (bool, string) {
		active := st.Pipeline()
		ok, message := manager.Apply(active, frameRelay.Sinks())
		if ok {
			frameRelay.ResetOrientation()
		}
		configJSON, err := json.Marshal(active)
		if err != nil {
			configJSON = []byte("{}")
		}
		if err := sessionDB.RecordPipelineApply(st.DeviceID(), string(configJSON), ok, message); err != nil {
			log.Printf("[Main] failed to record pipeline apply: %v", err)
		}
		return ok, message
	}
	st.OnReset = manager.Reset

	disp := store.NewDispatcher()
	runner := store.NewRunner(st, disp, manager.Poll)
	runner.PollInterval = cfg.GetPollInterval()

	recorder := api.NewStatsRecorder(
		func() (uint64, uint64, int32) {
			s := publisher.StatsSnapshot()
			return s.EntryCount, s.DroppedCount, s.ClientCount
		},
		func(ts time.Time, entries, dropped uint64, clients int32) error {
			return sessionDB.RecordSinkStats(db.SinkStatsSample{
				Timestamp: ts,
				Entries:   entries,
				Dropped:   dropped,
				Clients:   clients,
			})
		},
	)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("[Main] actor loop error: %v", err)
		}
		log.Print("[Main] actor loop terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(ctx, cfg.GetStatsInterval())
		log.Print("[Main] stats recorder terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		if err := sessionDB.AttachAdminRoutes(mux); err != nil {
			log.Printf("[Main] failed to attach admin routes: %v", err)
		}
		apiMux := api.NewServer(disp, recorder).ServeMux()
		mux.Handle("/", apiMux)

		server := &http.Server{
			Addr:    cfg.GetListenAddr(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("[Main] control API listening on %s", cfg.GetListenAddr())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("[Main] failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("[Main] shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Main] HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("[Main] graceful shutdown complete")
}

// loadConfig merges the optional config file with command line overrides.
// Flags win when set.
func loadConfig() *config.Config {
	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("[Main] failed to load config: %v", err)
		}
	} else {
		cfg = config.Empty()
	}

	if *listen != "" {
		cfg.ListenAddr = listen
	}
	if *sinkListen != "" {
		cfg.LogSinkAddr = sinkListen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *simMode {
		cfg.SimMode = simMode
	}
	return cfg
}
