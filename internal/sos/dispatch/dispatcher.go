// Package dispatch implements the proximity-alert fan-out: persist the
// alert, select approved candidates within the fixed radius, and push to
// every candidate with a live session.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/raksha/internal/geo"
	"github.com/example/raksha/internal/presence"
	"github.com/example/raksha/internal/sos/domain"
)

const storageTimeout = 5 * time.Second

// CandidateFinder is an optional directory capability: implementations can
// narrow the candidate set spatially before the exact distance filter runs.
type CandidateFinder interface {
	CandidatesNear(ctx context.Context, id uuid.UUID, point domain.GeoPoint, radiusMeters float64) ([]domain.Candidate, error)
}

// Result reports the outcome of a dispatch.
type Result struct {
	AlertID  uuid.UUID `json:"alert_id"`
	Notified int       `json:"notified_users"`
}

// Dispatcher orchestrates alert persistence and fan-out.
type Dispatcher struct {
	users    domain.Directory
	alerts   domain.AlertRepository
	registry *presence.Registry
	events   domain.EventPublisher
	clock    domain.Clock
	logger   *zap.Logger
}

// New constructs a Dispatcher with the required collaborators. events may
// be nil when no broker is configured.
func New(users domain.Directory, alerts domain.AlertRepository, registry *presence.Registry, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{users: users, alerts: alerts, registry: registry, events: events, clock: clock, logger: logger}
}

// Dispatch persists a new alert for the origin user and pushes it to every
// approved user within the radius that currently has a live session. The
// returned count reflects push attempts, not delivery confirmations. Two
// identical calls create two distinct alert records; no deduplication is
// performed.
func (d *Dispatcher) Dispatch(ctx context.Context, originID uuid.UUID, lat, lng *float64) (Result, error) {
	start := time.Now()

	if lat == nil || lng == nil {
		dispatchDuration.WithLabelValues("invalid_input").Observe(time.Since(start).Seconds())
		return Result{}, domain.ErrLocationRequired
	}
	origin := domain.GeoPoint{Lat: *lat, Lng: *lng}

	user, err := d.users.GetUser(ctx, originID)
	if err != nil {
		dispatchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return Result{}, err
	}

	// Once validated, the dispatch runs to completion even if the
	// requesting connection drops.
	ctx = context.WithoutCancel(ctx)

	alert := domain.Alert{
		ID:        uuid.New(),
		UserID:    user.ID,
		UserName:  user.Name,
		Point:     origin,
		CreatedAt: d.clock.Now(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	alert, err = d.alerts.CreateAlert(storeCtx, alert)
	if err != nil {
		dispatchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return Result{}, fmt.Errorf("create alert: %w", err)
	}
	alertsTotal.Inc()

	candidates, err := d.candidates(storeCtx, originID, origin)
	if err != nil {
		dispatchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return Result{}, fmt.Errorf("load candidates: %w", err)
	}

	notified := 0
	for _, candidate := range candidates {
		if !geo.WithinRadius(origin, candidate.Point, domain.RadiusMeters) {
			continue
		}
		session, ok := d.registry.Lookup(candidate.UserID)
		if !ok {
			// Not connected: silently skipped, no retry, no queuing.
			continue
		}
		notified++
		if err := session.PushAlert(alert); err != nil {
			// Per-recipient transport failure; never aborts the rest of
			// the fan-out. Delivery is not confirmed.
			pushFailures.Inc()
			d.logger.Warn("alert push failed",
				zap.Error(err),
				zap.String("alert_id", alert.ID.String()),
				zap.String("user_id", candidate.UserID.String()))
		}
	}
	notifiedTotal.Add(float64(notified))

	if d.events != nil {
		if err := d.events.Publish(ctx, alert); err != nil {
			d.logger.Warn("alert event publish failed", zap.Error(err), zap.String("alert_id", alert.ID.String()))
		}
	}

	dispatchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	d.logger.Info("alert dispatched",
		zap.String("alert_id", alert.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.Int("notified", notified))

	return Result{AlertID: alert.ID, Notified: notified}, nil
}

func (d *Dispatcher) candidates(ctx context.Context, originID uuid.UUID, origin domain.GeoPoint) ([]domain.Candidate, error) {
	if finder, ok := d.users.(CandidateFinder); ok {
		return finder.CandidatesNear(ctx, originID, origin, domain.RadiusMeters)
	}
	return d.users.CandidatesExcluding(ctx, originID)
}
