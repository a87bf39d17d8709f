// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"context"
	"sync"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"
	"golang.org/x/sync/errgroup"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
)

// defaultParallelism bounds how many relationships a fan-out
// operation works on at once.
const defaultParallelism = 4

// CoordinatorConfig holds the dependencies of a Coordinator.
type CoordinatorConfig struct {
	// Backend is the active backend whose pools are protected.
	Backend backend.Config

	// Provider resolves the configuration of replication targets.
	Provider backend.ConfigProvider

	// NewClient opens control clients. Most callers pass
	// backend.NewClient.
	NewClient backend.NewControlClientFunc

	Clock clock.Clock

	// Parallelism overrides the fan-out bound. Zero means 4.
	Parallelism int

	// QuiesceInterval is passed through to the mirror managers.
	QuiesceInterval time.Duration

	// Metrics may be nil.
	Metrics *Metrics
}

// Validate returns an error if the config cannot be relied upon.
func (config CoordinatorConfig) Validate() error {
	if config.Backend.Name() == "" {
		return errors.NotValidf("empty Backend")
	}
	if config.Provider == nil {
		return errors.NotValidf("nil Provider")
	}
	if config.NewClient == nil {
		return errors.NotValidf("nil NewClient")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Coordinator fans mirror operations out across every configured
// replication target of one backend. Operations on the same
// relationship are serialized on its key, so overlapping batches
// cannot interleave against a single relationship.
type Coordinator struct {
	config CoordinatorConfig
	locks  *kmutex.Kmutex

	mu       sync.Mutex
	source   backend.ControlClient
	managers map[string]*MirrorManager
}

// NewCoordinator returns a Coordinator for the backend described by
// config.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Coordinator{
		config:   config,
		locks:    kmutex.New(),
		managers: make(map[string]*MirrorManager),
	}, nil
}

func (c *Coordinator) parallelism() int {
	if c.config.Parallelism > 0 {
		return c.config.Parallelism
	}
	return defaultParallelism
}

// manager returns the cached MirrorManager for one replication
// target, opening clients as needed.
func (c *Coordinator) manager(ctx context.Context, target string) (*MirrorManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mgr, ok := c.managers[target]; ok {
		return mgr, nil
	}
	targetConfig, err := c.config.Provider.BackendConfig(target)
	if err != nil {
		return nil, errors.Annotatef(err, "resolving replication target %q", target)
	}
	if c.source == nil {
		source, err := c.config.NewClient(ctx, c.config.Backend)
		if err != nil {
			return nil, errors.Trace(err)
		}
		c.source = source
	}
	destination, err := c.config.NewClient(ctx, targetConfig)
	if err != nil {
		return nil, errors.Trace(err)
	}
	mgr, err := NewMirrorManager(ManagerConfig{
		Source:            c.config.Backend,
		Destination:       targetConfig,
		SourceClient:      c.source,
		DestinationClient: destination,
		Clock:             c.config.Clock,
		QuiesceInterval:   c.config.QuiesceInterval,
		Metrics:           c.config.Metrics,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.managers[target] = mgr
	return mgr, nil
}

func (c *Coordinator) withLock(key string, f func() error) error {
	c.locks.Lock(key)
	defer c.locks.Unlock(key)
	return f()
}

// EnsureAll brings the relationships for the given pools into a
// healthy replicating state on every configured target. The first
// failure aborts the batch and is returned: a pool that cannot be
// protected must fail loudly rather than run unprotected.
func (c *Coordinator) EnsureAll(ctx context.Context, pools []string) error {
	targets := c.config.Backend.ReplicationTargets()
	if len(targets) == 0 {
		logger.Debugf("backend %q has no replication targets", c.config.Backend.Name())
		return nil
	}
	managers := make([]*MirrorManager, 0, len(targets))
	for _, target := range targets {
		mgr, err := c.manager(ctx, target)
		if err != nil {
			return errors.Trace(err)
		}
		managers = append(managers, mgr)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism())
	for _, mgr := range managers {
		for _, pool := range pools {
			mgr, pool := mgr, pool
			g.Go(func() error {
				key := mgr.Ref(pool, pool).Key()
				return c.withLock(key, func() error {
					return errors.Trace(mgr.Create(gctx, pool, pool))
				})
			})
		}
	}
	return errors.Trace(g.Wait())
}

// BreakAll breaks the relationships for the given pools on every
// configured target and returns the pools whose break failed against
// chosen. Failures elsewhere are logged only; they do not gate
// bringing the chosen target into service.
func (c *Coordinator) BreakAll(ctx context.Context, pools []string, chosen string) []string {
	failed := set.NewStrings()
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(c.parallelism())
	for _, target := range c.config.Backend.ReplicationTargets() {
		mgr, err := c.manager(ctx, target)
		if err != nil {
			if target == chosen {
				logger.Errorf("cannot reach chosen failover target %q: %v", target, err)
				mu.Lock()
				for _, pool := range pools {
					failed.Add(pool)
				}
				mu.Unlock()
			} else {
				logger.Warningf("cannot reach replication target %q: %v", target, err)
			}
			continue
		}
		for _, pool := range pools {
			target, pool := target, pool
			g.Go(func() error {
				key := mgr.Ref(pool, pool).Key()
				err := c.withLock(key, func() error {
					return mgr.Break(ctx, pool, pool)
				})
				if err == nil {
					return nil
				}
				if target == chosen {
					logger.Errorf("cannot break mirror for pool %q on target %q: %v", pool, target, err)
					mu.Lock()
					failed.Add(pool)
					mu.Unlock()
				} else {
					logger.Warningf("cannot break mirror for pool %q on target %q: %v", pool, target, err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	out := failed.Values()
	naturalsort.Sort(out)
	return out
}

// UpdateAll requests incremental transfers for the given pools on
// every configured target. Failures are logged and dropped: update
// runs on maintenance and last-gasp paths where the source backend
// may already be unreachable.
func (c *Coordinator) UpdateAll(ctx context.Context, pools []string) {
	var g errgroup.Group
	g.SetLimit(c.parallelism())
	for _, target := range c.config.Backend.ReplicationTargets() {
		mgr, err := c.manager(ctx, target)
		if err != nil {
			logger.Warningf("cannot reach replication target %q: %v", target, err)
			continue
		}
		for _, pool := range pools {
			target, pool := target, pool
			g.Go(func() error {
				key := mgr.Ref(pool, pool).Key()
				err := c.withLock(key, func() error {
					return mgr.Update(ctx, pool, pool)
				})
				if err != nil {
					logger.Warningf("cannot update mirror for pool %q on target %q: %v", pool, target, err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

// ListMirrors reports the relationships from the coordinator's
// backend to one replication target, optionally restricted to the
// named source pools.
func (c *Coordinator) ListMirrors(ctx context.Context, target string, pools []string) ([]mirror.Info, error) {
	mgr, err := c.manager(ctx, target)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return mgr.List(ctx, pools)
}
