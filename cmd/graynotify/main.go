// graynotify keeps the set of notification sources for a Linux audio host:
// the wired output plus every Bluetooth device bonded with the local adapter,
// each of which can be enabled or disabled by the user.
//
// Sources are stored in SQLite, reconciled against BlueZ over the D-Bus
// system bus, and exposed over HTTP/WebSocket and (optionally) MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-notify/migrations"

	"github.com/nerrad567/gray-logic-notify/internal/api"
	"github.com/nerrad567/gray-logic-notify/internal/audit"
	"github.com/nerrad567/gray-logic-notify/internal/bluetooth"
	"github.com/nerrad567/gray-logic-notify/internal/device"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-notify/internal/relay"
	"github.com/nerrad567/gray-logic-notify/internal/sources"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting graynotify",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Device store
	manager, err := device.NewManager(ctx, device.ManagerOptions{
		Opener: device.DatabaseOpener(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		}),
		WiredName: cfg.Sources.WiredName,
		Logger:    log.With("component", "device"),
	})
	if err != nil {
		return fmt.Errorf("opening device store: %w", err)
	}
	defer func() {
		log.Info("closing device store")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing device store", "error", closeErr)
		}
	}()
	log.Info("device store open", "path", cfg.Database.Path)

	// Audit trail: a second handle on the same database file, opened after
	// the manager has migrated it.
	auditDB, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening audit database: %w", err)
	}
	defer func() {
		if closeErr := auditDB.Close(); closeErr != nil {
			log.Error("error closing audit database", "error", closeErr)
		}
	}()
	if _, err := auditDB.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating audit database: %w", err)
	}
	auditRepo := audit.NewSQLiteRepository(auditDB.DB)

	recorders := &recorderSet{}
	recorders.add(audit.NewSyncRecorder(auditRepo, log.With("component", "audit")))
	checks := map[string]api.HealthChecker{
		"store": storeHealth{stores: manager, timeout: cfg.Store.AwaitTimeout},
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		influxClient.SetLogger(log.With("component", "influxdb"))
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		recorders.add(influxRecorder{client: influxClient})
		stopCounts := manager.AllDevices().Observe(func(list []device.Device) {
			influxClient.WriteCounts(len(list), len(device.FilterEnabled(list)), time.Now())
		})
		defer stopCounts()
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	engine, err := sources.NewEngine(sources.EngineOptions{
		Stores:       manager,
		WiredName:    cfg.Sources.WiredName,
		AwaitTimeout: cfg.Store.AwaitTimeout,
		Logger:       log.With("component", "sources"),
		Recorder:     recorders,
	})
	if err != nil {
		return fmt.Errorf("creating sync engine: %w", err)
	}

	prober, changes := bluetoothStack(cfg.Bluetooth, log)
	watcher, err := sources.NewWatcher(sources.WatcherOptions{
		Engine:         engine,
		Prober:         prober,
		Changes:        changes,
		ResyncInterval: cfg.Sources.ResyncInterval,
		Debounce:       cfg.Sources.Debounce,
		Logger:         log.With("component", "watcher"),
	})
	if err != nil {
		return fmt.Errorf("creating source watcher: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// MQTT relay (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		mqttClient.SetLogger(log.With("component", "mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttRelay, relayErr := relay.New(relay.Options{
			Broker:  mqttClient,
			All:     manager.AllDevices(),
			Enabled: manager.EnabledDevices(),
			Syncer:  watcher,
			Toggler: engine,
			QoS:     byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0-2
			Logger:  log.With("component", "relay"),
		})
		if relayErr != nil {
			return fmt.Errorf("creating MQTT relay: %w", relayErr)
		}
		mqttClient.SetOnConnect(mqttRelay.Republish)
		recorders.add(mqttRelay)
		checks["mqtt"] = mqttClient

		group.Go(func() error { return mqttRelay.Run(groupCtx) })
	} else {
		log.Info("MQTT disabled")
	}

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log.With("component", "api"),
		Sources:      manager,
		Toggler:      engine,
		Syncer:       watcher,
		Audit:        auditRepo,
		AwaitTimeout: cfg.Store.AwaitTimeout,
		Checks:       checks,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(groupCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	group.Go(func() error { return watcher.Run(groupCtx) })

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := group.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	log.Info("graynotify stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYNOTIFY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYNOTIFY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// bluetoothStack returns the prober and change watcher for cfg. With
// Bluetooth disabled both report the adapter as unavailable forever.
func bluetoothStack(cfg config.BluetoothConfig, log *logging.Logger) (bluetooth.Prober, bluetooth.Watcher) {
	if !cfg.Enabled {
		log.Info("Bluetooth disabled; only the wired source will be kept")
		return bluetooth.Disabled{}, bluetooth.Disabled{}
	}
	bluez := bluetooth.NewBlueZ(bluetooth.BlueZOptions{
		Adapter:    cfg.Adapter,
		Permission: bluetooth.NewGroupPermission(cfg.RequirePermissionGroup),
		Logger:     log.With("component", "bluez"),
	})
	log.Info("Bluetooth enabled",
		"adapter", cfg.Adapter,
		"permission_group", cfg.RequirePermissionGroup,
		"storage_dir", cfg.StorageDir,
	)
	if cfg.StorageDir == "" {
		return bluez, bluez
	}
	storage := bluetooth.NewStorageWatcher(cfg.StorageDir, log.With("component", "bluez-storage"))
	return bluez, bluetooth.Watchers{bluez, storage}
}
