// EDUSAT Bridge - serial MCU to network relay.
//
// The bridge reads telemetry frames from the satellite MCU over a serial
// link, keeps the latest snapshot in memory and pushes it to a remote
// dashboard. Operator commands travel the opposite way.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nerrad567/edusat-bridge/internal/api"
	"github.com/nerrad567/edusat-bridge/internal/bridges/mcu"
	"github.com/nerrad567/edusat-bridge/internal/channel"
	"github.com/nerrad567/edusat-bridge/internal/history"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/database"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/mdns"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/edusat-bridge/internal/state"
	"github.com/nerrad567/edusat-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "EDUSAT_CONFIG"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("edusat-bridge %s (%s, %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting EDUSAT bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// .env is optional; values already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	if configPath == "" {
		log.Info("no config file found, using defaults")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	log = logging.New(cfg.Logging, version).With("bridge_id", cfg.Bridge.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	ch, err := newChannel(cfg, log)
	if err != nil {
		return err
	}
	if err := ch.Connect(ctx); err != nil {
		return fmt.Errorf("connecting %s channel: %w", cfg.Network.Transport, err)
	}
	defer func() {
		log.Info("closing network channel")
		if closeErr := ch.Close(); closeErr != nil {
			log.Error("error closing network channel", "error", closeErr)
		}
	}()
	log.Info("network channel started", "transport", cfg.Network.Transport)

	// Optional telemetry journal.
	var (
		db      *database.DB
		repo    history.Repository
		journal *history.Journal
	)
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, cfg.Database)
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
		log.Info("database ready", "path", db.Path())

		repo = history.NewSQLiteRepository(db.DB)
		journal = history.NewJournal(repo, history.JournalOptions{
			MinInterval: time.Duration(cfg.Database.MinInterval) * time.Millisecond,
			Retention:   cfg.Database.Retention,
			Logger:      log.Component("journal"),
		})
		detach := journal.Attach(store)
		journal.Start(ctx)
		defer func() {
			detach()
			journal.Stop()
			log.Info("telemetry journal stopped", "written", journal.Stats().Written)
		}()
	}

	// Optional InfluxDB recorder.
	if cfg.InfluxDB.Enabled {
		influx, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			// Time-series history is best effort.
			log.Warn("influxdb unavailable, recorder disabled", "error", connErr)
		} else {
			influx.SetOnError(func(writeErr error) {
				log.Warn("influxdb write failed", "error", writeErr)
			})
			recorder := history.NewRecorder(influx, cfg.Bridge.ID, mcu.LayoutFromConfig(cfg.Protocol), 0)
			detach := recorder.Attach(store)
			defer func() {
				detach()
				log.Info("closing influxdb",
					"frames", recorder.Recorded(),
					"points_failed", influx.Stats().Failed)
				if closeErr := influx.Close(); closeErr != nil {
					log.Error("error closing influxdb", "error", closeErr)
				}
			}()
			log.Info("influxdb recorder started", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	bridge, err := mcu.NewBridge(mcu.BridgeOptions{
		Config:  cfg,
		Store:   store,
		Channel: ch,
		Logger:  log.Component("mcu"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := bridge.Start(ctx); startErr != nil {
		// The network side stays up; the device may appear later.
		log.Error("device unavailable", "error", startErr, "retry", cfg.Serial.Retry.Enabled)
	}
	defer bridge.Stop()

	if cfg.API.Enabled {
		stop, apiErr := startAPI(ctx, cfg, log, store, bridge, repo, journal, db)
		if apiErr != nil {
			return apiErr
		}
		defer stop()
	}

	log.Info("EDUSAT bridge running", "session_id", bridge.SessionID())
	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// loadConfig resolves the configuration file. The returned path is empty
// when the built-in defaults are used.
func loadConfig() (*config.Config, string, error) {
	path, explicit := getConfigPath()
	if _, err := os.Stat(path); err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg, defErr := config.Default()
		if defErr != nil {
			return nil, "", fmt.Errorf("loading default config: %w", defErr)
		}
		return cfg, "", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// getConfigPath returns the configuration file path and whether it was
// chosen explicitly through EDUSAT_CONFIG.
func getConfigPath() (string, bool) {
	if path := os.Getenv(configEnvVar); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

func newStore(cfg *config.Config) (*state.Store, error) {
	var opts []state.Option
	if j := cfg.Sensor.Jitter; j.Enabled {
		transform, err := state.Jitter{
			Channel:   j.Channel,
			Amplitude: j.Amplitude,
			Mode:      state.JitterMode(j.Mode),
		}.Transform()
		if err != nil {
			return nil, fmt.Errorf("configuring jitter: %w", err)
		}
		opts = append(opts, state.WithTransform(transform))
	}
	return state.NewStore(mcu.LayoutFromConfig(cfg.Protocol), opts...), nil
}

func newChannel(cfg *config.Config, log *logging.Logger) (channel.Channel, error) {
	switch cfg.Network.Transport {
	case "mqtt":
		client := mqtt.New(cfg.MQTT, cfg.Bridge.ID)
		client.SetLogger(log.Component("mqtt"))
		ch := channel.NewMQTTChannel(client, byte(cfg.MQTT.QoS)) //nolint:gosec // validated 0-2
		ch.SetLogger(log.Component("channel"))
		return ch, nil
	case "websocket":
		ch, err := channel.NewWebSocketClient(channel.WebSocketOptionsFromConfig(cfg.Network.WebSocket))
		if err != nil {
			return nil, fmt.Errorf("creating websocket channel: %w", err)
		}
		ch.SetLogger(log.Component("channel"))
		return ch, nil
	default:
		return nil, fmt.Errorf("unknown network transport %q", cfg.Network.Transport)
	}
}

// startAPI starts the status server and, when configured, the mDNS
// advertisement. The returned func stops both.
func startAPI(
	ctx context.Context,
	cfg *config.Config,
	log *logging.Logger,
	store *state.Store,
	bridge *mcu.Bridge,
	repo history.Repository,
	journal *history.Journal,
	db *database.DB,
) (func(), error) {
	deps := api.Deps{
		Config:   cfg.API,
		Logger:   log.Component("api"),
		Store:    store,
		BridgeID: cfg.Bridge.ID,
		Version:  version,
		Bridge:   bridge,
		History:  repo,
	}
	// Typed nils must not reach the interface fields.
	if journal != nil {
		deps.Journal = journal
	}
	if db != nil {
		deps.Database = db
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	log.Info("status API listening", "host", cfg.API.Host, "port", server.Port())

	advertiser := mdns.NewAdvertiser()
	if cfg.API.Advertise {
		info := mdns.Info{
			Instance:  cfg.Bridge.Name,
			BridgeID:  cfg.Bridge.ID,
			Version:   version,
			Transport: cfg.Network.Transport,
			Port:      server.Port(),
		}
		if advErr := advertiser.Start(info); advErr != nil {
			log.Warn("mDNS advertisement failed", "error", advErr)
		} else {
			log.Info("advertising status API", "service", mdns.ServiceType, "port", server.Port())
		}
	}

	return func() {
		advertiser.Stop()
		log.Info("stopping status API")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping status API", "error", closeErr)
		}
	}, nil
}
