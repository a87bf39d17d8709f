// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package mirrorupdater runs periodic mirror maintenance for one
// backend: every interval the protected pools are re-ensured and an
// incremental transfer is requested, so drifted or repaired
// relationships converge without operator action.
package mirrorupdater

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
	"github.com/volmirror/volmirror/internal/replication"
)

var logger = loggo.GetLogger("volmirror.worker.mirrorupdater")

// Coordinator is the part of the replication coordinator the worker
// drives on each round.
type Coordinator interface {
	EnsureAll(ctx context.Context, pools []string) error
	UpdateAll(ctx context.Context, pools []string)
	ListMirrors(ctx context.Context, target string, pools []string) ([]mirror.Info, error)
}

// PoolLister reports the pools that need protection. Implementations
// typically consult the volume inventory backing the active backend.
type PoolLister interface {
	ProtectedPools(ctx context.Context) ([]string, error)
}

// Config holds the dependencies of the mirror updater worker.
type Config struct {
	Backend     backend.Config
	Coordinator Coordinator
	Pools       PoolLister
	Clock       clock.Clock
	Interval    time.Duration

	// Metrics may be nil; lag gauges are skipped without it.
	Metrics *replication.Metrics
}

// Validate returns an error if the config cannot drive a worker.
func (config Config) Validate() error {
	if config.Backend.Name() == "" {
		return errors.NotValidf("empty Backend")
	}
	if config.Coordinator == nil {
		return errors.NotValidf("nil Coordinator")
	}
	if config.Pools == nil {
		return errors.NotValidf("nil Pools")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Interval <= 0 {
		return errors.NotValidf("non-positive Interval")
	}
	return nil
}

// NewWorker returns a worker maintaining the mirrors of the backend
// described by config. The first round runs at startup; maintenance
// failures are logged and never kill the worker.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &updaterWorker{config: config}
	err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	})
	return w, errors.Trace(err)
}

type updaterWorker struct {
	catacomb catacomb.Catacomb
	config   Config
}

// Kill is part of the worker.Worker interface.
func (w *updaterWorker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *updaterWorker) Wait() error {
	return w.catacomb.Wait()
}

func (w *updaterWorker) loop() error {
	ctx := w.catacomb.Context(context.Background())

	w.maintain(ctx)
	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-timer.Chan():
			w.maintain(ctx)
			timer.Reset(w.config.Interval)
		}
	}
}

// maintain runs one maintenance round. A failed round leaves the
// volumes serving and is retried wholesale on the next tick, so
// every failure here is a warning, not an error.
func (w *updaterWorker) maintain(ctx context.Context) {
	name := w.config.Backend.Name()
	pools, err := w.config.Pools.ProtectedPools(ctx)
	if err != nil {
		logger.Warningf("cannot list protected pools for backend %q: %v", name, err)
		return
	}
	if len(pools) == 0 {
		logger.Debugf("backend %q has no pools to protect", name)
		return
	}
	logger.Debugf("maintaining %d pools for backend %q", len(pools), name)
	if err := w.config.Coordinator.EnsureAll(ctx, pools); err != nil {
		logger.Warningf("cannot ensure mirrors for backend %q: %v", name, err)
	}
	w.config.Coordinator.UpdateAll(ctx, pools)
	w.observeLag(ctx, pools)
}

func (w *updaterWorker) observeLag(ctx context.Context, pools []string) {
	if w.config.Metrics == nil {
		return
	}
	for _, target := range w.config.Backend.ReplicationTargets() {
		infos, err := w.config.Coordinator.ListMirrors(ctx, target, pools)
		if err != nil {
			logger.Debugf("cannot list mirrors on target %q: %v", target, err)
			continue
		}
		for _, info := range infos {
			if !info.Healthy() {
				continue
			}
			w.config.Metrics.SetMirrorLag(target, info.Destination.Pool, info.LagTime)
		}
	}
}
