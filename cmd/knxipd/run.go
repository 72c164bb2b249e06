package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxip-device/internal/api"
	"github.com/nerrad567/knxip-device/internal/bridge"
	"github.com/nerrad567/knxip-device/internal/infrastructure/config"
	"github.com/nerrad567/knxip-device/internal/infrastructure/influxdb"
	"github.com/nerrad567/knxip-device/internal/infrastructure/logging"
	"github.com/nerrad567/knxip-device/internal/infrastructure/metrics"
	"github.com/nerrad567/knxip-device/internal/infrastructure/mqtt"
	"github.com/nerrad567/knxip-device/internal/knxip"
	"github.com/nerrad567/knxip-device/internal/nvstore"
	"github.com/nerrad567/knxip-device/internal/transport"
)

// timerInterval is how often the staircase timer is checked.
const timerInterval = 500 * time.Millisecond

// run is the daemon, separated from main for testability. It returns nil
// on clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting knxipd",
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

	// Non-volatile store
	region, err := nvstore.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		log.Info("closing storage")
		if closeErr := region.Close(); closeErr != nil {
			log.Error("error closing storage", "error", closeErr)
		}
	}()
	log.Info("storage opened", "backend", cfg.Storage.Backend, "path", cfg.Storage.Path, "size", region.Size())

	// Multicast endpoint
	mc, err := transport.Listen(transport.Config{
		Group:       cfg.Multicast.Group,
		Port:        cfg.Multicast.Port,
		Interface:   cfg.Multicast.Interface,
		Loopback:    cfg.Multicast.Loopback,
		TTL:         cfg.Multicast.TTL,
		ReadTimeout: cfg.Multicast.ReadTimeout,
	}, log.Component("multicast"))
	if err != nil {
		return fmt.Errorf("joining multicast group: %w", err)
	}
	defer func() {
		log.Info("leaving multicast group")
		if closeErr := mc.Close(); closeErr != nil {
			log.Error("error closing multicast endpoint", "error", closeErr)
		}
	}()
	log.Info("multicast group joined", "group", mc.Group().String())

	dev, app, err := newDevice(cfg, region, mc, log)
	if err != nil {
		return err
	}

	restored, err := dev.Load()
	if err != nil {
		return fmt.Errorf("loading device state: %w", err)
	}
	pa := dev.PhysicalAddress().PhysicalString()
	log.Info("device ready",
		"physical_address", pa,
		"restored", restored,
		"assignments", len(dev.Assignments()),
	)

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(pa, metrics.Sources{Device: dev.Stats, Transport: mc.Stats})
		log.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	health := make(map[string]api.HealthChecker)
	if hc, ok := region.(api.HealthChecker); ok {
		health["storage"] = hc
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix, Device: pa}
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, topics)
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
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttClient.ClientID(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, pa)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Bridge
	if mqttClient != nil || influxClient != nil {
		b, bridgeErr := startBridge(ctx, cfg, dev, topics, mqttClient, influxClient, m, log)
		if bridgeErr != nil {
			return fmt.Errorf("starting bridge: %w", bridgeErr)
		}
		defer func() {
			log.Info("stopping bridge")
			b.Stop()
		}()
	}

	// HTTP API
	if cfg.API.Enabled {
		srv, apiErr := startAPI(ctx, cfg, dev, m, health, log)
		if apiErr != nil {
			return fmt.Errorf("starting API: %w", apiErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Receive loop and staircase timer
	var wg sync.WaitGroup
	loopCtx, stopLoops := context.WithCancel(ctx)
	defer func() {
		stopLoops()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.runTimer(loopCtx, timerInterval)
	}()
	go func() {
		defer wg.Done()
		receiveLog := log.Component("receive")
		err := mc.Run(loopCtx, func(datagram []byte) {
			if _, err := dev.ProcessOnce(datagram); err != nil {
				receiveLog.Debug("datagram dropped", "error", err)
			}
		})
		if err != nil {
			receiveLog.Error("receive loop stopped", "error", err)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: loops, API, bridge, InfluxDB,
	// MQTT, multicast, storage.
	return nil
}

// newDevice creates the device and registers the application's items.
// sender may be nil for offline use.
func newDevice(cfg *config.Config, store knxip.Store, sender knxip.Sender, log *logging.Logger) (*knxip.Device, *application, error) {
	dispatch, err := knxip.ParseDispatchPolicy(cfg.Device.Dispatch)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing dispatch policy: %w", err)
	}

	opts := knxip.Options{
		PhysicalAddress: cfg.PhysicalAddress(),
		Capacities:      cfg.Device.Capacities,
		Dispatch:        dispatch,
		IgnoreSelfEcho:  cfg.Device.IgnoreSelfEcho,
		SendChecksum:    cfg.Device.SendChecksum,
		Store:           store,
		Sender:          sender,
		Logger:          log.Component("knxip"),
	}

	dev, err := knxip.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("creating device: %w", err)
	}
	app, err := newApplication(dev, log.Component("app"))
	if err != nil {
		return nil, nil, err
	}
	return dev, app, nil
}

// startBridge wires the device to MQTT and InfluxDB. Either client may be
// nil; nil pointers are kept out of the bridge's interfaces.
func startBridge(
	ctx context.Context,
	cfg *config.Config,
	dev *knxip.Device,
	topics mqtt.Topics,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	m *metrics.Metrics,
	log *logging.Logger,
) (*bridge.Bridge, error) {
	opts := bridge.Options{
		Device:   dev,
		Topics:   topics,
		Logger:   log.Component("bridge"),
		Interval: cfg.MQTT.PublishInterval,
	}
	if mqttClient != nil {
		opts.Publisher = mqttClient
	}
	if influxClient != nil {
		opts.History = influxClient
	}
	if m != nil {
		opts.Recorder = m
	}

	b, err := bridge.New(opts)
	if err != nil {
		return nil, err
	}
	if err := b.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("bridge started", "interval", cfg.MQTT.PublishInterval)
	return b, nil
}

func startAPI(
	ctx context.Context,
	cfg *config.Config,
	dev *knxip.Device,
	m *metrics.Metrics,
	health map[string]api.HealthChecker,
	log *logging.Logger,
) (*api.Server, error) {
	deps := api.Deps{
		Config:      cfg.API,
		Logger:      log.Component("api"),
		Device:      dev,
		Version:     version,
		MetricsPath: cfg.Metrics.Path,
		Health:      health,
	}
	if m != nil {
		deps.Metrics = m.Handler()
		deps.Recorder = m
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return srv, nil
}
