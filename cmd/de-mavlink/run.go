package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HefnySco/droneengage-mavlink/internal/config"
	"github.com/HefnySco/droneengage-mavlink/internal/connstate"
	"github.com/HefnySco/droneengage-mavlink/internal/dispatch"
	"github.com/HefnySco/droneengage-mavlink/internal/facade"
	"github.com/HefnySco/droneengage-mavlink/internal/identity"
	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/metrics"
	"github.com/HefnySco/droneengage-mavlink/internal/monitor"
	"github.com/HefnySco/droneengage-mavlink/internal/parser"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
	"github.com/HefnySco/droneengage-mavlink/internal/registry"
	"github.com/HefnySco/droneengage-mavlink/internal/store"
	"github.com/HefnySco/droneengage-mavlink/internal/swarm"
	"github.com/HefnySco/droneengage-mavlink/internal/traffic"
	"github.com/HefnySco/droneengage-mavlink/internal/transport"
	"github.com/HefnySco/droneengage-mavlink/internal/vehicle"
)

// pollInterval is how often the main loop checks the shutdown flag.
const pollInterval = 100 * time.Millisecond

func run(opts options, instance time.Time, serial string) error {
	printVersion(os.Stdout)
	fmt.Printf("%s %d seconds since the Epoch\n", instance.Format(time.ANSIC), instance.Unix())

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	st, err := store.New(opts.localPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	moduleKey, err := identity.EnsureModuleKey(ctx, st, time.Now)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg, os.Stdout, instance)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Infof("[main] Drone-Engage FCB Module version %s, module key %s", version, moduleKey)
	if last, err := st.LoadParty(ctx); err == nil {
		logger.Infof("[main] last known party %q group %q", last.PartyID, last.GroupID)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ident := identity.New(cfg.ModuleID, moduleKey, instance)
	veh := vehicle.NewState()

	module := transport.Module{
		Class:             transport.ClassFCB,
		ID:                cfg.ModuleID,
		Key:               moduleKey,
		Version:           version,
		Filter:            protocol.MessageFilter,
		HardwareSerial:    serial,
		HardwareType:      transport.HardwareTypeCPU,
		InstanceTimestamp: ident.InstanceTimestamp(),
	}
	module.AddFeature(transport.FeatureSendingTelemetry)
	module.AddFeature(transport.FeatureReceivingTelemetry)

	client, err := transport.NewClient(transport.Options{
		ListenAddr: cfg.ListenAddr(),
		TargetAddr: cfg.TargetAddr(),
		Module:     module,
		Self:       ident,
		Optimizer:  traffic.New(cfg.TelemetryRateHz),
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	fac, err := facade.New(client, veh, ident)
	if err != nil {
		return err
	}

	fc := &flightControl{logger: logger}
	follower := swarm.NewFollower(fc, logger)

	var events parser.EventChannels
	if fire, wait, ok := cfg.EventChannels(); ok {
		events = parser.EventChannels{Fire: fire, Wait: wait, Enabled: true}
	}
	p := parser.New(logger, fac, veh, follower, fc, ident, events)

	hub := monitor.NewHub(logger, m)
	go hub.Run()
	defer hub.Stop()

	notifier := &statusNotifier{
		logger:  logger,
		store:   st,
		metrics: m,
		hub:     hub,
		facade:  fac,
		ident:   ident,
		module:  module,
	}

	var fleet *registry.Registry
	if len(cfg.EtcdEndpoints) > 0 {
		fleet, err = registry.New(cfg.EtcdEndpoints)
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := fleet.Deregister(dctx); err != nil && !errors.Is(err, registry.ErrNotRegistered) {
				logger.Warnf("[main] deregister: %v", err)
			}
			fleet.Close()
		}()
		notifier.registry = fleet
	}

	// Drained after the transport closes and before the registry and store.
	notifier.effects = newEffectWorker(logger, effectQueueSize, effectTimeout)
	defer notifier.effects.close()

	tracker := connstate.New(notifier.onChange)
	d := dispatch.New(logger, p, dispatch.StandardRules(ident, tracker, follower)...).
		WithMetrics(m).
		WithTap(notifier.onDispatched)

	if cfg.MonitorListen != "" {
		srv := &http.Server{
			Addr:    cfg.MonitorListen,
			Handler: monitor.NewRouter(hub, statusFunc(st, ident, tracker, follower, fleet), reg),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("[main] monitor server: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warnf("[main] monitor shutdown: %v", err)
			}
		}()
		logger.Infof("[main] monitor listening on %s", cfg.MonitorListen)
	}

	// Transport goes last: nothing is received before the handlers exist.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	client.Start(runCtx, d.HandleDatagram)
	logger.Infof("[main] udp %s -> %s", cfg.ListenAddr(), cfg.TargetAddr())

	var exit atomic.Bool
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		<-quit
		exit.Store(true)
	}()

	for !exit.Load() {
		time.Sleep(pollInterval)
	}

	logger.Infof("[main] terminating at user request")
	if err := client.Close(); err != nil {
		logger.Warnf("[main] close transport: %v", err)
	}
	return nil
}

// statusFunc builds the /status body.
// fleet may be nil when no etcd endpoints are configured.
func statusFunc(st *store.Store, ident *identity.Identity, tracker *connstate.Tracker, follower *swarm.Follower, fleet *registry.Registry) monitor.StatusFunc {
	return func(ctx context.Context) (any, error) {
		history, err := st.ListStatusChanges(ctx, 10)
		if err != nil {
			return nil, err
		}
		status := tracker.Status()
		body := map[string]any{
			"identity":   ident.Snapshot(),
			"status":     status,
			"statusName": connstate.StatusName(status),
			"leader":     follower.Leader(),
			"relayed":    follower.Relayed(),
			"dropped":    follower.Dropped(),
			"history":    history,
		}
		if fleet != nil {
			peers, err := fleet.Discover(ctx)
			if err != nil {
				return nil, err
			}
			body["fleet"] = peers
		}
		return body, nil
	}
}
