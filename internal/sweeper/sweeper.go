// Package sweeper clears expired zone overrides on a fixed interval.
package sweeper

import (
	"context"
	"log"
	"time"

	"parking-status-backend/config"
	"parking-status-backend/internal/notification"
	"parking-status-backend/internal/store"
	"parking-status-backend/internal/stream"
)

// Service owns the override expiry sweep. It is started by the process
// lifecycle and stops when its context is cancelled; SweepOnce is exported so
// tests can trigger a cycle deterministically.
type Service struct {
	cfg   *config.Config
	store store.Store
	hub   stream.Broadcaster
	pool  *notification.WorkerPool
}

// NewService creates the sweeper. pool may be nil when push notifications are
// not configured.
func NewService(cfg *config.Config, s store.Store, hub stream.Broadcaster, pool *notification.WorkerPool) *Service {
	return &Service{cfg: cfg, store: s, hub: hub, pool: pool}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.Sweeper.Disabled {
		log.Println("Override expiry sweeper is explicitly disabled; expired overrides will persist until cleared by an operator.")
		return
	}
	log.Printf("Starting override expiry sweeper (interval %s)...", s.cfg.Sweeper.Interval)

	timer := time.NewTimer(s.cfg.Sweeper.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweeper shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Sweeper.Interval)
		}
	}
}

// SweepOnce runs one expiry cycle. Each expired override is an independent
// unit of work: a failure on one zone is logged and the cycle moves on.
func (s *Service) SweepOnce(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.store.ExpiredOverrides(ctx, now)
	if err != nil {
		log.Printf("Sweep cycle aborted, could not list expired overrides: %v", err)
		return
	}

	for _, override := range expired {
		change, err := s.store.ExpireOverride(ctx, override.ZoneID, now)
		if err != nil {
			log.Printf("Error expiring override for zone %s: %v", override.ZoneID, err)
			continue
		}
		if change == nil {
			// Replaced or un-expired by an operator between the listing and
			// the transaction; nothing to do.
			continue
		}
		log.Printf("Expired override for zone %s", override.ZoneID)

		if change.View != nil {
			s.hub.BroadcastPatch(*change.View)
			if change.BecameAvailable && s.pool != nil {
				s.pool.Dispatch(override.ZoneID)
			}
		}
	}
}
