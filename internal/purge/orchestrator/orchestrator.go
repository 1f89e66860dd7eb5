// Package orchestrator runs purges: resolve the zone, build the request,
// call the provider, interpret the result and report it.
package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/requestid"
	"github.com/edgecomet/cfpurge/internal/purge/audit"
	"github.com/edgecomet/cfpurge/internal/purge/cfapi"
	"github.com/edgecomet/cfpurge/internal/purge/metrics"
	"github.com/edgecomet/cfpurge/pkg/types"
)

// ZoneResolver yields the zone id to purge
type ZoneResolver interface {
	ResolveZoneID(ctx context.Context) (string, error)
}

// URLCollector lists the URLs affected by a content change
type URLCollector interface {
	Collect(content types.ChangedContent) []string
}

// Trigger identifies the event that caused a purge
type Trigger struct {
	ID   string
	Name string
}

// NewTrigger assigns a fresh id to a named trigger
func NewTrigger(name string) Trigger {
	return Trigger{ID: requestid.New(name), Name: name}
}

// Orchestrator never returns errors: failures are logged, counted, audited
// and reported as a nil notice or a false result.
type Orchestrator struct {
	resolver  ZoneResolver
	api       cfapi.Caller
	collector URLCollector
	emitter   audit.Emitter
	metrics   metrics.Recorder
	daemonID  string
	logger    *zap.Logger
}

func New(
	resolver ZoneResolver,
	api cfapi.Caller,
	collector URLCollector,
	emitter audit.Emitter,
	recorder metrics.Recorder,
	daemonID string,
	logger *zap.Logger,
) *Orchestrator {
	if emitter == nil {
		emitter = &audit.NoopEmitter{}
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Orchestrator{
		resolver:  resolver,
		api:       api,
		collector: collector,
		emitter:   emitter,
		metrics:   recorder,
		daemonID:  daemonID,
		logger:    logger,
	}
}

// PurgeFullZone purges everything in the zone. It returns nil when the zone
// could not be resolved; no purge call is made in that case.
func (o *Orchestrator) PurgeFullZone(ctx context.Context, trigger Trigger) *Notice {
	start := time.Now()
	event := o.newEvent(trigger, types.FullPurge(), start)

	zoneID, err := o.resolver.ResolveZoneID(ctx)
	if err != nil {
		o.abort(event, err, start)
		return nil
	}
	event.ZoneID = zoneID

	res, ok := o.send(ctx, event, types.FullPurge())
	o.finish(event, ok, start)

	if !ok {
		message := ""
		if res != nil {
			message = res.Message
		}
		o.logger.Warn("Full zone purge failed",
			zap.String("trigger", trigger.Name),
			zap.String("trigger_id", trigger.ID),
			zap.String("zone_id", zoneID),
			zap.String("message", message))
		return failureNotice(message)
	}

	o.logger.Info("Full zone purge requested",
		zap.String("trigger", trigger.Name),
		zap.String("trigger_id", trigger.ID),
		zap.String("zone_id", zoneID))
	return successNotice()
}

// PurgeURLs purges the URLs affected by a content change.
func (o *Orchestrator) PurgeURLs(ctx context.Context, trigger Trigger, content types.ChangedContent) bool {
	start := time.Now()

	zoneID, err := o.resolver.ResolveZoneID(ctx)
	if err != nil {
		o.abort(o.newEvent(trigger, types.SelectivePurge(nil), start), err, start)
		return false
	}

	urls := o.collector.Collect(content)
	o.logger.Debug("Collected affected URLs",
		zap.String("trigger_id", trigger.ID),
		zap.Int64("content_id", content.ID),
		zap.Int("urls", len(urls)))

	return o.purgeFiles(ctx, trigger, zoneID, urls, start)
}

// PurgeFiles sends a selective purge for an explicit URL list.
func (o *Orchestrator) PurgeFiles(ctx context.Context, trigger Trigger, urls []string) bool {
	start := time.Now()

	zoneID, err := o.resolver.ResolveZoneID(ctx)
	if err != nil {
		o.abort(o.newEvent(trigger, types.SelectivePurge(urls), start), err, start)
		return false
	}

	return o.purgeFiles(ctx, trigger, zoneID, urls, start)
}

func (o *Orchestrator) purgeFiles(ctx context.Context, trigger Trigger, zoneID string, urls []string, start time.Time) bool {
	req := types.SelectivePurge(urls)
	event := o.newEvent(trigger, req, start)
	event.ZoneID = zoneID

	res, ok := o.send(ctx, event, req)
	o.finish(event, ok, start)

	if res != nil && res.SuccessPresent && !res.Success {
		o.logger.Warn("Selective purge reported success=false; a presence-only check would have counted it as success",
			zap.String("trigger_id", trigger.ID),
			zap.String("zone_id", zoneID),
			zap.Int("urls", len(urls)),
			zap.String("message", res.Message))
	} else if !ok {
		o.logger.Warn("Selective purge failed",
			zap.String("trigger_id", trigger.ID),
			zap.String("zone_id", zoneID),
			zap.Int("urls", len(urls)),
			zap.String("error_type", event.ErrorType))
	} else {
		o.logger.Debug("Selective purge requested",
			zap.String("trigger_id", trigger.ID),
			zap.String("zone_id", zoneID),
			zap.Int("urls", len(urls)))
	}

	return ok
}

// send issues the purge call and fills the outcome fields of event
func (o *Orchestrator) send(ctx context.Context, event *audit.PurgeEvent, req types.PurgeRequest) (*cfapi.Result, bool) {
	res, err := o.api.Call(ctx, http.MethodDelete, "zones/"+event.ZoneID+"/purge_cache", cfapi.Params(req.Params()))
	if err != nil {
		event.ErrorType = errorType(err)
		event.Message = err.Error()
		return nil, false
	}

	event.StatusCode = res.StatusCode
	event.Message = res.Message
	if !res.Succeeded() {
		event.ErrorType = "provider"
		return res, false
	}
	return res, true
}

func (o *Orchestrator) abort(event *audit.PurgeEvent, err error, start time.Time) {
	event.Outcome = audit.OutcomeAborted
	event.ErrorType = "zone"
	event.Message = err.Error()
	event.Duration = time.Since(start).Seconds()

	o.metrics.RecordPurge(event.Trigger, event.Kind, event.Outcome, 0, time.Since(start))
	o.emitter.Emit(event)

	o.logger.Debug("Purge aborted, zone unresolved",
		zap.String("trigger", event.Trigger),
		zap.String("trigger_id", event.TriggerID),
		zap.String("kind", event.Kind))
}

func (o *Orchestrator) finish(event *audit.PurgeEvent, ok bool, start time.Time) {
	event.Outcome = audit.OutcomeFailure
	if ok {
		event.Outcome = audit.OutcomeSuccess
	}
	event.Duration = time.Since(start).Seconds()

	o.metrics.RecordPurge(event.Trigger, event.Kind, event.Outcome, len(event.URLs), time.Since(start))
	o.emitter.Emit(event)
}

func (o *Orchestrator) newEvent(trigger Trigger, req types.PurgeRequest, start time.Time) *audit.PurgeEvent {
	return &audit.PurgeEvent{
		TriggerID: trigger.ID,
		Trigger:   trigger.Name,
		Kind:      req.Kind(),
		URLs:      req.Files,
		CreatedAt: start.UTC(),
		DaemonID:  o.daemonID,
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, cfapi.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, cfapi.ErrTransport):
		return "transport"
	default:
		return "request"
	}
}
