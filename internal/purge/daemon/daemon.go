// Package daemon assembles the purge components from configuration and
// dispatches trigger actions to them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
	"github.com/edgecomet/cfpurge/internal/common/metricsserver"
	"github.com/edgecomet/cfpurge/internal/purge/audit"
	"github.com/edgecomet/cfpurge/internal/purge/cfapi"
	"github.com/edgecomet/cfpurge/internal/purge/coalesce"
	"github.com/edgecomet/cfpurge/internal/purge/collector"
	"github.com/edgecomet/cfpurge/internal/purge/hookserver"
	"github.com/edgecomet/cfpurge/internal/purge/metrics"
	"github.com/edgecomet/cfpurge/internal/purge/nonce"
	"github.com/edgecomet/cfpurge/internal/purge/optionstore"
	"github.com/edgecomet/cfpurge/internal/purge/orchestrator"
	"github.com/edgecomet/cfpurge/internal/purge/triggers"
	"github.com/edgecomet/cfpurge/internal/purge/zone"
)

// CoalescedTrigger names purges flushed from the coalescing queue
const CoalescedTrigger = "coalesced"

// PurgeDaemon owns every purge component and their lifecycle
type PurgeDaemon struct {
	config       *configtypes.PurgeDaemonConfig
	store        optionstore.Store
	resolver     *zone.Resolver
	collector    *collector.Collector
	orchestrator *orchestrator.Orchestrator
	queue        *coalesce.Queue // nil unless coalescing is enabled
	emitter      audit.Emitter
	metrics      *metrics.PrometheusMetrics
	nonces       *nonce.Generator
	logger       *zap.Logger

	metricsServer *fasthttp.Server
	hookServer    *hookserver.Server
	api           *hookserver.API
}

// New opens the option store and builds the purge pipeline. Listeners are
// opened by Start.
func New(ctx context.Context, cfg *configtypes.PurgeDaemonConfig, logger *zap.Logger) (*PurgeDaemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("daemon config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	store, err := optionstore.New(ctx, cfg.Options, logger)
	if err != nil {
		return nil, err
	}

	client, err := cfapi.NewClient(cfg.Provider, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}

	emitter, err := newEmitter(ctx, cfg.Audit, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	promMetrics := metrics.NewPrometheusMetrics(cfg.Metrics.Namespace, logger)

	resolver := zone.NewResolver(store, client, cfg.Site.HomeURL, logger).WithRecorder(promMetrics)
	urlCollector := collector.New(collector.NewPermalinkLinks(cfg.Site))

	d := &PurgeDaemon{
		config:       cfg,
		store:        store,
		resolver:     resolver,
		collector:    urlCollector,
		orchestrator: orchestrator.New(resolver, client, urlCollector, emitter, promMetrics, cfg.DaemonID, logger),
		emitter:      emitter,
		metrics:      promMetrics,
		nonces:       nonce.NewGenerator(cfg.Admin.NonceSecret, time.Duration(cfg.Admin.NonceLifetime)),
		logger:       logger,
	}

	if cfg.Coalesce.Enabled {
		d.queue = coalesce.NewQueue(time.Duration(cfg.Coalesce.Window), d.flushCoalesced, promMetrics, logger)
		logger.Info("Coalescing selective purges",
			zap.Duration("window", time.Duration(cfg.Coalesce.Window)))
	}

	if cfg.HTTPApi.Enabled {
		d.hookServer = hookserver.NewServer(cfg.HTTPApi.AuthKey, promMetrics, logger)
		d.api = hookserver.NewAPI(d, resolver, d.nonces, cfg.Admin.PublicURL, cfg.DaemonID, logger).
			WithTimeout(time.Duration(cfg.HTTPApi.RequestTimeout))
		d.api.Register(d.hookServer)
	}

	return d, nil
}

// newEmitter builds the configured audit sinks
func newEmitter(ctx context.Context, cfg configtypes.AuditConfig, logger *zap.Logger) (audit.Emitter, error) {
	var emitters []audit.Emitter

	if cfg.File.Enabled {
		fileEmitter, err := audit.NewFileEmitter(cfg.File, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file audit emitter: %w", err)
		}
		emitters = append(emitters, fileEmitter)
	}

	if cfg.ClickHouse.Enabled {
		chEmitter, err := audit.NewClickHouseEmitter(ctx, cfg.ClickHouse, logger)
		if err != nil {
			for _, e := range emitters {
				_ = e.Close()
			}
			return nil, fmt.Errorf("failed to create clickhouse audit emitter: %w", err)
		}
		emitters = append(emitters, chEmitter)
	}

	switch len(emitters) {
	case 0:
		return &audit.NoopEmitter{}, nil
	case 1:
		return emitters[0], nil
	default:
		return audit.NewMultiEmitter(emitters...), nil
	}
}

// Start opens the metrics listener and serves the hook API in the background.
func (d *PurgeDaemon) Start(ctx context.Context) error {
	metricsServer, err := metricsserver.Start(d.config.Metrics, d.metrics, d.logger)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	d.metricsServer = metricsServer

	if d.hookServer == nil {
		d.logger.Warn("HTTP API is disabled in configuration")
		return nil
	}

	addr := d.config.HTTPApi.Listen
	go func() {
		if err := d.hookServer.Start(addr); err != nil {
			d.logger.Error("Hook server error", zap.Error(err))
		}
	}()
	return nil
}

// Dispatch executes a trigger action. Full purges report the notice level;
// selective purges report whether every item was purged, or queued when
// coalescing is enabled.
func (d *PurgeDaemon) Dispatch(ctx context.Context, action triggers.Action) bool {
	trigger := orchestrator.NewTrigger(action.Trigger)

	if action.Full {
		notice := d.orchestrator.PurgeFullZone(ctx, trigger)
		return notice != nil && notice.Level == orchestrator.NoticeSuccess
	}

	if d.queue != nil {
		for _, content := range action.Contents {
			d.queue.Add(ctx, d.collector.Collect(content))
		}
		d.logger.Debug("Queued selective purge",
			zap.String("trigger", trigger.Name),
			zap.String("trigger_id", trigger.ID),
			zap.Int("items", len(action.Contents)),
			zap.Int("pending", d.queue.Pending()))
		return true
	}

	ok := true
	for _, content := range action.Contents {
		if !d.orchestrator.PurgeURLs(ctx, trigger, content) {
			ok = false
		}
	}
	return ok
}

// ManualPurge runs the admin-requested full purge and returns its notice.
func (d *PurgeDaemon) ManualPurge(ctx context.Context) *orchestrator.Notice {
	action, _ := triggers.ManualPurge()
	return d.orchestrator.PurgeFullZone(ctx, orchestrator.NewTrigger(action.Trigger))
}

func (d *PurgeDaemon) flushCoalesced(ctx context.Context, urls []string) bool {
	return d.orchestrator.PurgeFiles(ctx, orchestrator.NewTrigger(CoalescedTrigger), urls)
}

// Resolver exposes the zone resolver for status and reset operations.
func (d *PurgeDaemon) Resolver() *zone.Resolver {
	return d.resolver
}

// API returns the hook API, or nil when http_api is disabled.
func (d *PurgeDaemon) API() *hookserver.API {
	return d.api
}

// HookAddr returns the bound hook server address once Start has run.
func (d *PurgeDaemon) HookAddr() string {
	if d.hookServer == nil {
		return ""
	}
	return d.hookServer.Addr()
}

// Shutdown stops listeners first, then flushes queued purges and closes sinks.
func (d *PurgeDaemon) Shutdown(ctx context.Context) error {
	d.logger.Info("Shutting down purge daemon")

	var errs []error
	if d.hookServer != nil {
		if err := d.hookServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("hook server: %w", err))
		}
	}

	if d.queue != nil {
		if err := d.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("coalesce queue: %w", err))
		}
	}

	if err := d.emitter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audit emitter: %w", err))
	}

	if d.metricsServer != nil {
		if err := d.metricsServer.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("option store: %w", err))
	}

	d.logger.Info("Purge daemon shutdown complete")
	return errors.Join(errs...)
}
