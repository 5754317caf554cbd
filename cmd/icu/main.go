// ICU - animatronic surveillance eye controller
//
// This is the main entry point for the controller process. It wires the
// lifecycle machine, the startup and demonstration sequencers and the
// display, servo and LED peripherals into one cooperative control loop,
// and reports what the loop does to the journal, MQTT, InfluxDB,
// Prometheus and the WebSocket feed.
//
// Hardware is simulated in this build; the perception node may be a real
// UART or the icu-perception-sim tool on a pseudo-terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/icu-core/internal/api"
	"github.com/nerrad567/icu-core/internal/controller"
	"github.com/nerrad567/icu-core/internal/infrastructure/config"
	"github.com/nerrad567/icu-core/internal/infrastructure/database"
	"github.com/nerrad567/icu-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/icu-core/internal/infrastructure/logging"
	"github.com/nerrad567/icu-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/icu-core/internal/journal"
	"github.com/nerrad567/icu-core/internal/metrics"
	"github.com/nerrad567/icu-core/internal/report"
	"github.com/nerrad567/icu-core/internal/serial"
	"github.com/nerrad567/icu-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// pruneInterval is how often journal rows past retention are removed.
const pruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear start-up sequence
	log := logging.Default()
	log.Info("starting ICU controller",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, cfg.Device.ID, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	rec := metrics.New()
	dispatcher := controller.NewDispatcher(cfg.Loop.EventBuffer, log.Component("dispatcher"))
	rec.TrackDroppedEvents(dispatcher.Dropped)

	// Journal (optional)
	var (
		db      *database.DB
		history *journal.Journal
	)
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		history = journal.New(db.DB)
		dispatcher.AddSink(report.Counted("journal", report.Journal(history), rec))
		log.Info("journal ready", "path", cfg.Database.Path, "retention_days", cfg.Database.RetentionDays)

		if cfg.Database.RetentionDays > 0 {
			go pruneLoop(ctx, history, time.Duration(cfg.Database.RetentionDays)*24*time.Hour, log)
		}
	} else {
		log.Info("journal disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Device.ID, log.Component("mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		dispatcher.AddSink(report.Counted("mqtt", report.MQTT(mqttClient), rec))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"prefix", mqttClient.Topics().Prefix(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.ID)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			rec.SinkError("influxdb")
			log.Error("InfluxDB write error", "error", err)
		})
		dispatcher.AddSink(report.Influx(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Perception link (optional)
	var port *serial.Port
	if cfg.Serial.Enabled {
		port, err = serial.Open(ctx, serialConfig(cfg.Serial), log.Component("serial"))
		if err != nil {
			return fmt.Errorf("opening perception link: %w", err)
		}
		defer func() {
			if closeErr := port.Close(); closeErr != nil {
				log.Warn("error closing serial port", "error", closeErr)
			}
		}()
		rec.TrackDroppedLines(port.Dropped)
		rec.TrackSerialLink(port.Oversized, port.Reopens)
	} else {
		log.Info("perception link disabled; running without a camera")
	}

	rig, err := buildRig(cfg, log)
	if err != nil {
		return fmt.Errorf("building hardware: %w", err)
	}
	if cfg.Fan.Enabled {
		if fanErr := rig.setFanSpeed(cfg.Fan.SpeedPercent); fanErr != nil {
			log.Warn("fan control failed", "error", fanErr)
		}
	}

	deps := rig.deps()
	deps.Dispatcher = dispatcher
	deps.Metrics = rec
	deps.Logger = log.Component("controller")
	if port != nil {
		deps.Perception = port
	}

	phases, err := demoPhases(cfg.Demo)
	if err != nil {
		return fmt.Errorf("building demo schedule: %w", err)
	}
	ctrl, err := controller.New(deps, controller.Options{
		Phases:               phases,
		TickInterval:         cfg.GetTickInterval(),
		RestartStartupOnWrap: cfg.Demo.RestartStartupOnWrap,
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}
	log.Info("controller ready", "boot_id", ctrl.BootID(), "phases", len(phases))

	// API + WebSocket (optional)
	if cfg.API.Enabled {
		hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
		go hub.Run(ctx)
		dispatcher.AddSink(hub)

		apiDeps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Status:  ctrl,
			Metrics: rec.Handler(),
			Hub:     hub,
			Version: version,
		}
		if history != nil {
			apiDeps.History = history
			apiDeps.DB = db.DB
		}
		if mqttClient != nil {
			apiDeps.MQTT = mqttClient
		}
		server, apiErr := api.New(apiDeps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	log.Info("initialisation complete, entering control loop")
	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("control loop: %w", err)
	}

	snap := ctrl.Snapshot()
	log.Info("shutdown signal received, cleaning up",
		"state", snap.State,
		"passes", snap.Passes,
		"demo_cycles", snap.DemoCycles,
	)
	return nil
}

// loadConfig reads ICU_CONFIG, falling back to built-in defaults when the
// default path does not exist. An explicitly named file must exist.
func loadConfig() (*config.Config, string, error) {
	path := os.Getenv("ICU_CONFIG")
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	if _, err := os.Stat(config.DefaultPath); errors.Is(err, os.ErrNotExist) {
		cfg, err := config.Defaults()
		return cfg, "(defaults)", err
	}
	cfg, err := config.Load(config.DefaultPath)
	return cfg, config.DefaultPath, err
}

func pruneLoop(ctx context.Context, j *journal.Journal, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := j.Prune(ctx, time.Now(), retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("journal prune failed", "error", err)
		case n > 0:
			log.Info("journal pruned", "rows", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
