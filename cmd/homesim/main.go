package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"homesim/internal/api"
	"homesim/internal/config"
	"homesim/internal/engine"
	"homesim/internal/events"
	"homesim/internal/kafka"
	"homesim/internal/logger"
	"homesim/internal/metrics"
	"homesim/internal/mqtt"
	"homesim/internal/optimizer"
	"homesim/internal/plugins"
	"homesim/internal/plugins/kafkabridge"
	"homesim/internal/plugins/mqttbridge"
	"homesim/internal/sensor"
	"homesim/internal/storage"
)

// Version is set at build time via -ldflags "-X main.Version=vX.Y.Z"
var Version = "dev"

const (
	maxStoredRuns   = 50
	shutdownTimeout = 10 * time.Second
)

func main() {
	log := logger.New(os.Stderr, logger.InfoLevel)

	// Load configuration from .env file
	cfg, err := config.Load(".env")
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	log.SetLevel(logger.ParseLevel(cfg.LogLevel()))
	log.Infof("Configuration loaded: %s", cfg)

	if err := run(cfg, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	store, err := storage.NewBoltStorage(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	e, err := newEngine(cfg, log, engine.Observers{m, newRunArchiver(store, maxStoredRuns, log)})
	if err != nil {
		return err
	}
	defer e.Close()

	if err := m.WatchHub(e.Hub()); err != nil {
		return fmt.Errorf("failed to register hub metrics: %w", err)
	}

	// Settings changed through the API win over the .env defaults.
	if saved, ok, err := api.LoadOptimization(store); err != nil {
		log.Warnf("Failed to load saved optimization settings: %v", err)
	} else if ok {
		if err := api.ApplyOptimization(e, saved); err != nil {
			log.Warnf("Ignoring saved optimization settings: %v", err)
		} else {
			log.Infof("Restored optimization settings: duty=%.2f aggregation=%.2f adaptive=%v",
				saved.DutyCycle, saved.AggregationFactor, saved.Adaptive)
		}
	}

	deps := &plugins.PluginDependencies{
		Engine:  e,
		Config:  cfg,
		Logger:  log,
		Storage: store,
	}
	registry := plugins.NewRegistry()

	if cfg.MQTTBroker() != "" {
		client, err := mqtt.New(mqtt.Config{
			Broker:   cfg.MQTTBroker(),
			ClientID: cfg.MQTTClientID(),
			Username: cfg.MQTTUsername(),
			Password: cfg.MQTTPassword(),
			Prefix:   cfg.MQTTPrefix(),
			UseTLS:   cfg.MQTTUseTLS(),
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create MQTT client: %w", err)
		}
		deps.MQTTClient = client
		deps.MQTTPublisher = mqtt.NewPublisher(client, log)
		deps.MQTTDiscovery = mqtt.NewDiscoveryManager(client, log, store, mqttbridge.PluginName)
		if err := registry.Register(mqttbridge.New()); err != nil {
			return err
		}
	}

	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		producer, err := kafka.New(kafka.Config{
			Brokers: brokers,
			Topic:   cfg.KafkaTopic(),
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create Kafka producer: %w", err)
		}
		defer producer.Close()
		deps.KafkaProducer = producer
		if err := registry.Register(kafkabridge.New()); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registry.InitAll(ctx, deps); err != nil {
		return fmt.Errorf("failed to initialize plugins: %w", err)
	}
	if err := registry.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start plugins: %w", err)
	}
	if err := registry.StartBackgroundTasksAll(ctx); err != nil {
		log.Warnf("Failed to start plugin background tasks: %v", err)
	}
	log.Infof("Plugins: %d registered, %d running", registry.Count(), len(registry.Running()))

	auditLog := events.NewStore(200)
	settings := &settingsReloader{cfg: cfg, log: log}
	server := api.NewServer(api.ServerDeps{
		Engine:   e,
		Storage:  store,
		Plugins:  registry,
		Metrics:  m,
		Events:   auditLog,
		Logger:   log,
		Version:  Version,
		Settings: settings,
	})

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.StdLogger(),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	fmt.Printf("HomeSim %s starting on %s with %d sensors\n", Version, addr, len(e.Sensors()))
	printAccessURLs(portOf(addr))

	if cfg.Autostart() {
		if _, err := e.Start(); err != nil {
			log.Errorf("Failed to start simulation: %v", err)
		} else {
			auditLog.Add(events.EventSimulationStart, "local", true, "autostart")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

wait:
	for {
		select {
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			break wait
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				err := settings.Reload()
				if err != nil {
					log.Warnf("Config reload failed: %v", err)
				}
				auditLog.Add(events.EventConfigReload, "local", err == nil, "SIGHUP")
				continue
			}
			log.Infof("Received %s, shutting down", sig)
			break wait
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop the run before the bridges so they flush its last events. Closing
	// the engine then ends every stream connection, which Shutdown does not
	// track once hijacked.
	if _, err := e.Stop(); err != nil {
		log.Warnf("Failed to stop simulation: %v", err)
	}
	if err := registry.StopAll(shutdownCtx); err != nil {
		log.Warnf("Failed to stop plugins: %v", err)
	}
	e.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}
	log.Infof("Shutdown complete")
	return nil
}

// newEngine builds the simulation engine from configuration.
func newEngine(cfg *config.Config, log *logger.Logger, obs engine.Observer) (*engine.Engine, error) {
	seed := cfg.Seed()
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gate, err := optimizer.ParseGateMode(cfg.GateMode())
	if err != nil {
		return nil, fmt.Errorf("invalid gate mode: %w", err)
	}

	opts := engine.DefaultOptions()
	opts.TickInterval = cfg.TickInterval()
	opts.Seed = seed
	opts.Optimization = optimizer.Config{
		DutyCycle:         cfg.DutyCycle(),
		AggregationFactor: cfg.AggregationFactor(),
	}
	opts.GateMode = gate
	opts.Adaptive = cfg.Adaptive()
	opts.HistorySize = cfg.HistorySize()
	opts.Backlog = cfg.SubscriberBacklog()
	opts.Logger = log
	opts.Observer = obs

	e, err := engine.New(sensor.DefaultFleet(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return e, nil
}

// settingsReloader re-reads .env and applies the settings that can change
// without a restart.
type settingsReloader struct {
	cfg *config.Config
	log *logger.Logger
}

func (s *settingsReloader) Reload() error {
	if err := s.cfg.Reload(); err != nil {
		return err
	}
	s.log.SetLevel(logger.ParseLevel(s.cfg.LogLevel()))
	s.log.Infof("Configuration reloaded: %s", s.cfg)
	return nil
}

func portOf(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return addr[1:]
	}
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[idx+1:]
	}
	return addr
}

// getLocalIPs returns all local IP addresses
func getLocalIPs() []string {
	var ips []string

	interfaces, err := net.Interfaces()
	if err != nil {
		return ips
	}

	for _, iface := range interfaces {
		// Skip down or loopback interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if ip == nil || ip.IsLoopback() || ip.To4() == nil {
				continue
			}
			ips = append(ips, ip.String())
		}
	}

	return ips
}

// printAccessURLs prints the dashboard and API base URLs
func printAccessURLs(port string) {
	ips := getLocalIPs()
	if len(ips) == 0 {
		fmt.Printf("\nAPI available at http://localhost:%s/api\n", port)
		return
	}

	fmt.Println("\nAPI URLs:")
	for _, ip := range ips {
		fmt.Printf("  http://%s:%s/api\n", ip, port)
	}
	fmt.Println()
}
