package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/bluerial/internal/bridges/ble"
	"github.com/nerrad567/bluerial/internal/bridges/health"
	"github.com/nerrad567/bluerial/internal/bridges/serial"
	"github.com/nerrad567/bluerial/internal/device"
	"github.com/nerrad567/bluerial/internal/infrastructure/config"
	"github.com/nerrad567/bluerial/internal/infrastructure/database"
	"github.com/nerrad567/bluerial/internal/infrastructure/influxdb"
	"github.com/nerrad567/bluerial/internal/infrastructure/logging"
	"github.com/nerrad567/bluerial/internal/infrastructure/mqtt"
	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/internal/protocol"
	"github.com/nerrad567/bluerial/internal/radio"
	"github.com/nerrad567/bluerial/internal/telemetry"
	"github.com/nerrad567/bluerial/internal/uart"
	"github.com/nerrad567/bluerial/internal/watcher"
	"github.com/nerrad567/bluerial/migrations"
)

const (
	// pruneInterval is how often expired sightings are deleted.
	pruneInterval = time.Hour

	// rssiInterval throttles ble_rssi points per device.
	rssiInterval = 5 * time.Second
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var replayPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the BLE watcher and the MQTT bridges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root.resolveConfigPath(), replayPath)
		},
	}
	cmd.Flags().StringVar(&replayPath, "replay", "",
		"read advertisements from a JSON-lines capture instead of the radio")
	return cmd
}

// runServe is the service lifecycle: build every component, run until ctx
// is cancelled, then shut down in reverse order via the defer chain.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//   - replayPath: Optional capture file replacing the HCI radio
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runServe(ctx context.Context, configPath, replayPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Bluerial",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"keying", cfg.BLE.Keying,
		"level", cfg.Logging.Level,
	)

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Known-device registry
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	seeded, err := registry.Seed(ctx, cfg.BLE.KnownDevices)
	if err != nil {
		return fmt.Errorf("seeding device registry: %w", err)
	}
	log.Info("device registry initialised", "devices", registry.Count(), "seeded", seeded)

	// Sighting history
	sightings := device.NewSQLiteSightingRepository(db.DB)
	var recorder *device.Recorder
	if cfg.Database.History.Enabled {
		recorder = device.NewRecorder(sightings, cfg.Database.History.QueueSize)
		recorder.SetLogger(log.Component("history"))
		recorder.Start()
		defer func() {
			recorded, dropped, failed := recorder.Stats()
			log.Info("stopping sighting history", "recorded", recorded, "dropped", dropped, "failed", failed)
			recorder.Stop()
		}()
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT connection lost", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write failed", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Presence watcher
	source, err := newSource(cfg, replayPath, log)
	if err != nil {
		return err
	}
	w, err := watcher.New(source, watcherOptions(cfg, registry, log))
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			log.Error("error closing watcher", "error", closeErr)
		}
	}()

	scan := &scanMonitor{}
	w.Subscribe(scan.handle, presence.EventStarted, presence.EventStopped)
	if recorder != nil {
		w.Subscribe(recorder.Handle, device.RecordedEvents...)
	}
	if influxClient != nil {
		sink := telemetry.NewSink(influxClient, telemetry.Options{RSSIInterval: rssiInterval})
		w.Subscribe(sink.Handle)
	}

	topics := mqtt.NewTopics(cfg.MQTT.Topics)
	qos := byte(cfg.MQTT.QoS)

	// BLE bridge
	bleBridge, err := ble.NewBridge(ble.Options{
		Watcher:      w,
		MQTT:         mqttClient,
		CommandTopic: topics.BLECommands(),
		NotifyTopic:  topics.BLENotifications(),
		QoS:          qos,
	})
	if err != nil {
		return fmt.Errorf("creating BLE bridge: %w", err)
	}
	bleBridge.SetLogger(log.Component("ble"))
	if startErr := bleBridge.Start(); startErr != nil {
		return fmt.Errorf("starting BLE bridge: %w", startErr)
	}
	defer bleBridge.Stop()
	log.Info("BLE bridge started", "commands", topics.BLECommands(), "notifications", topics.BLENotifications())

	bleHealth := health.NewReporter(health.Config{
		Service:   "ble",
		Version:   version,
		Topic:     topics.ServiceHealth("ble"),
		Publisher: mqttClient,
		Check:     scan.status,
		Devices:   func() int { return w.Stats().Devices },
	})
	bleHealth.SetLogger(log.Component("health"))

	// Serial bridge (optional)
	var serialHealth *health.Reporter
	if cfg.Serial.Enabled {
		serialBridge, piper, serialErr := startSerialBridge(cfg, w, mqttClient, topics, log)
		if serialErr != nil {
			return serialErr
		}
		defer func() {
			serialBridge.Stop()
			if closeErr := piper.Close(); closeErr != nil {
				log.Error("error closing serial port", "error", closeErr)
			}
		}()

		serialHealth = health.NewReporter(health.Config{
			Service:   "serial",
			Version:   version,
			Topic:     topics.ServiceHealth("serial"),
			Publisher: mqttClient,
			Check: func() (bool, string) {
				if cfg.Serial.Port != "" && !piper.IsOpen() {
					return false, "serial port closed"
				}
				return true, ""
			},
		})
		serialHealth.SetLogger(log.Component("health"))
	}

	// Verify all connections are healthy
	if healthErr := healthCheck(ctx, db, mqttClient, influxClient); healthErr != nil {
		return fmt.Errorf("health check failed: %w", healthErr)
	}

	if cfg.BLE.Autostart {
		if startErr := w.Start(); startErr != nil {
			scan.failed(startErr)
			log.Error("scanning did not start", "error", startErr)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range []*health.Reporter{bleHealth, serialHealth} {
		if r == nil {
			continue
		}
		if pubErr := r.PublishStarting(); pubErr != nil {
			log.Warn("publishing starting health failed", "error", pubErr)
		}
		r.Start(gctx)
		defer r.Stop()
	}
	if recorder != nil && cfg.GetHistoryRetention() > 0 {
		g.Go(func() error {
			return pruneHistory(gctx, sightings, cfg.GetHistoryRetention(), log)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	log.Info("Bluerial running", "listening", w.IsListening())
	if waitErr := g.Wait(); waitErr != nil {
		return waitErr
	}

	log.Info("shutting down")

	// Close the watcher while the bridges are still subscribed so the final
	// scan-stopped notification and queued history writes are delivered.
	if closeErr := w.Close(); closeErr != nil {
		log.Error("error closing watcher", "error", closeErr)
	}
	return nil
}

// newSource returns the replay source when replayPath is set, otherwise
// the HCI scanner for the configured adapter.
func newSource(cfg *config.Config, replayPath string, log *logging.Logger) (watcher.Source, error) {
	if replayPath != "" {
		items, err := radio.LoadReplayFile(replayPath)
		if err != nil {
			return nil, fmt.Errorf("loading replay file: %w", err)
		}
		log.Info("replaying advertisements", "path", replayPath, "count", len(items))
		return radio.NewReplaySourceFromItems(items), nil
	}

	return radio.NewHCISource(radio.HCIOptions{
		DeviceID:        cfg.BLE.DeviceID,
		ActiveScan:      cfg.BLE.ActiveScan,
		AllowDuplicates: cfg.BLE.AllowDuplicates,
		Logger:          log.Component("radio"),
	}), nil
}

// watcherOptions maps the ble config section onto watcher.Options. The
// registry is only consulted when enrichment is enabled.
func watcherOptions(cfg *config.Config, registry *device.Registry, log *logging.Logger) watcher.Options {
	opts := watcher.Options{
		Keying:           watcher.Keying(cfg.BLE.Keying),
		HeartbeatTimeout: cfg.GetHeartbeatTimeout(),
		SweepInterval:    cfg.GetSweepInterval(),
		Logger:           log.Component("watcher"),
	}
	if cfg.BLE.Enrichment.Enabled {
		opts.Enricher = registry
		opts.EnrichTimeout = cfg.GetEnrichmentTimeout()
		opts.EnrichCacheTTL = cfg.GetEnrichmentCacheTTL()
		opts.EnrichWorkers = cfg.BLE.Enrichment.Workers
		opts.EnrichQueueSize = cfg.BLE.Enrichment.QueueSize
	}
	return opts
}

// startSerialBridge builds the piper and serial bridge, and opens the
// configured port if one is set. A port that fails to open is reported on
// the notification topic and does not stop the service.
func startSerialBridge(cfg *config.Config, w *watcher.Watcher, mqttClient *mqtt.Client, topics mqtt.Topics, log *logging.Logger) (*serial.Bridge, *uart.Piper, error) {
	stx, err := protocol.ParseHexBytes(cfg.Serial.STX)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing serial.stx: %w", err)
	}
	etx, err := protocol.ParseHexBytes(cfg.Serial.ETX)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing serial.etx: %w", err)
	}

	piper := uart.NewPiper(nil, stx, etx)
	defaults := uart.SettingsFromConfig(cfg.Serial)

	bridge, err := serial.NewBridge(serial.Options{
		Piper:        piper,
		MQTT:         mqttClient,
		CommandTopic: topics.SerialCommands(),
		NotifyTopic:  topics.SerialNotifications(),
		QoS:          byte(cfg.MQTT.QoS),
		Defaults:     defaults,
		Events:       w,
		Forward:      cfg.Serial.Forward,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating serial bridge: %w", err)
	}
	bridge.SetLogger(log.Component("serial"))
	if err := bridge.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting serial bridge: %w", err)
	}
	log.Info("serial bridge started",
		"commands", topics.SerialCommands(),
		"notifications", topics.SerialNotifications(),
		"forward", len(cfg.Serial.Forward),
	)

	if defaults.Port != "" {
		if err := bridge.Open(defaults); err != nil {
			log.Warn("serial port not opened", "port", defaults.Port, "error", err)
		}
	} else if ports, err := uart.AvailablePorts(); err == nil {
		log.Info("no serial port configured", "available", ports)
	}

	return bridge, piper, nil
}

// pruneHistory deletes sightings older than retention, once at startup and
// then every pruneInterval, until ctx is cancelled. Failures are logged.
func pruneHistory(ctx context.Context, repo *device.SQLiteSightingRepository, retention time.Duration, log *logging.Logger) error {
	prune := func() {
		n, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("pruning sighting history failed", "error", err)
		case n > 0:
			log.Info("pruned sighting history", "deleted", n, "retention", retention.String())
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}

// healthCheck verifies all infrastructure connections are working.
//
// Parameters:
//   - ctx: Context for timeout
//   - db: Database connection
//   - mqttClient: MQTT client
//   - influxClient: InfluxDB client (may be nil if disabled)
//
// Returns:
//   - error: nil if all healthy, or first failure encountered
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// =============================================================================
// Scan monitor
// =============================================================================

// scanMonitor remembers why scanning last ended, for the BLE health check.
// A requested stop is healthy; a source failure or failed start is not.
type scanMonitor struct {
	mu      sync.Mutex
	failure error
}

func (m *scanMonitor) handle(ev watcher.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case presence.EventStarted:
		m.failure = nil
	case presence.EventStopped:
		m.failure = ev.Err
	}
}

func (m *scanMonitor) failed(err error) {
	m.mu.Lock()
	m.failure = err
	m.mu.Unlock()
}

func (m *scanMonitor) status() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failure != nil {
		return false, "scanning failed: " + m.failure.Error()
	}
	return true, ""
}
