// Package zone maps the site to its Cloudflare zone id and caches the answer
// in the option store.
package zone

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
	"github.com/edgecomet/cfpurge/internal/common/urlutil"
	"github.com/edgecomet/cfpurge/internal/purge/cfapi"
	"github.com/edgecomet/cfpurge/internal/purge/metrics"
)

var (
	// ErrZoneNotFound means no zone id could be obtained for the site.
	ErrZoneNotFound = errors.New("could not get Cloudflare zone ID")
	// ErrZoneNotConfigured means there is no zone name to look up.
	ErrZoneNotConfigured = fmt.Errorf("%w: zone name is not configured", ErrZoneNotFound)
)

// Store is the part of the option store the resolver needs.
type Store interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Add(ctx context.Context, name, value string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// Zone is one entry of the zones list endpoint
type Zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Resolver resolves the zone id once and serves it from the store afterwards.
// The cached id never expires; only Reset invalidates it.
type Resolver struct {
	store   Store
	api     cfapi.Caller
	homeURL string
	metrics metrics.Recorder
	logger  *zap.Logger
}

func NewResolver(store Store, api cfapi.Caller, homeURL string, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:   store,
		api:     api,
		homeURL: homeURL,
		metrics: metrics.Noop{},
		logger:  logger,
	}
}

// WithRecorder reports lookup results to rec.
func (r *Resolver) WithRecorder(rec metrics.Recorder) *Resolver {
	r.metrics = rec
	return r
}

// ResolveZoneID returns the cached zone id, or looks it up by zone name and
// caches the first match. Failures are logged and returned as ErrZoneNotFound.
func (r *Resolver) ResolveZoneID(ctx context.Context) (string, error) {
	cached, found, err := r.store.Get(ctx, configtypes.OptionCachedZoneID)
	if err != nil {
		r.logger.Warn("Failed to read cached zone id, looking it up", zap.Error(err))
	} else if found && cached != "" {
		r.metrics.RecordZoneLookup(metrics.ZoneCacheHit)
		return cached, nil
	}

	id, err := r.lookup(ctx)
	if err != nil {
		r.metrics.RecordZoneLookup(metrics.ZoneFailed)
		return "", err
	}
	r.metrics.RecordZoneLookup(metrics.ZoneResolved)
	return id, nil
}

func (r *Resolver) lookup(ctx context.Context) (string, error) {
	name, err := r.zoneName(ctx)
	if err != nil {
		r.logger.Error("Could not get Cloudflare zone ID", zap.Error(err))
		return "", err
	}

	res, err := r.api.Call(ctx, http.MethodGet, "zones", cfapi.Params{"name": name})
	if err != nil {
		r.logger.Error("Could not get Cloudflare zone ID",
			zap.String("zone_name", name),
			zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrZoneNotFound, err)
	}

	var zones []Zone
	if err := res.DecodePayload(&zones); err != nil || len(zones) == 0 || zones[0].ID == "" {
		r.logger.Error("Could not get Cloudflare zone ID",
			zap.String("zone_name", name),
			zap.Int("status_code", res.StatusCode),
			zap.String("message", res.Message))
		return "", ErrZoneNotFound
	}
	id := zones[0].ID

	written, err := r.store.Add(ctx, configtypes.OptionCachedZoneID, id)
	if err != nil {
		r.logger.Warn("Failed to cache zone id",
			zap.String("zone_id", id),
			zap.Error(err))
	} else if !written {
		r.logger.Debug("Zone id already cached by another writer", zap.String("zone_id", id))
	}

	r.logger.Info("Resolved Cloudflare zone",
		zap.String("zone_name", name),
		zap.String("zone_id", id),
		zap.String("zone_status", zones[0].Status))

	return id, nil
}

// Cached returns the cached zone id without any lookup.
func (r *Resolver) Cached(ctx context.Context) (string, bool, error) {
	return r.store.Get(ctx, configtypes.OptionCachedZoneID)
}

// Reset forgets the cached zone id so the next resolve looks it up again.
func (r *Resolver) Reset(ctx context.Context) error {
	if err := r.store.Delete(ctx, configtypes.OptionCachedZoneID); err != nil {
		return fmt.Errorf("failed to reset zone id: %w", err)
	}
	r.logger.Info("Cached Cloudflare zone id cleared")
	return nil
}

func (r *Resolver) zoneName(ctx context.Context) (string, error) {
	name, _, err := r.store.Get(ctx, configtypes.OptionZoneName)
	if err != nil {
		r.logger.Warn("Failed to read zone name option", zap.Error(err))
	}
	if name != "" {
		return name, nil
	}

	if r.homeURL == "" {
		return "", ErrZoneNotConfigured
	}
	derived, err := urlutil.RegistrableDomain(r.homeURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrZoneNotConfigured, err)
	}
	return derived, nil
}
