// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"context"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
)

// OrchestratorConfig holds the dependencies of an Orchestrator.
type OrchestratorConfig struct {
	// Backend is the backend being failed away from.
	Backend backend.Config

	Coordinator *Coordinator
	Selector    *TargetSelector

	// Metrics may be nil.
	Metrics *Metrics
}

// Validate returns an error if the config cannot be relied upon.
func (config OrchestratorConfig) Validate() error {
	if config.Backend.Name() == "" {
		return errors.NotValidf("empty Backend")
	}
	if config.Coordinator == nil {
		return errors.NotValidf("nil Coordinator")
	}
	if config.Selector == nil {
		return errors.NotValidf("nil Selector")
	}
	return nil
}

// Orchestrator completes a failover away from a dead or dying
// backend. It mutates only the storage controllers; recording the
// returned volume status updates and redirecting clients to the new
// active backend are the caller's responsibility.
type Orchestrator struct {
	config OrchestratorConfig
}

// NewOrchestrator returns an Orchestrator for the backend described
// by config.
func NewOrchestrator(config OrchestratorConfig) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Orchestrator{config: config}, nil
}

// CompleteFailover fails the given volumes over to explicitTarget,
// or to the freshest configured target when explicitTarget is empty.
// If no target can be resolved the error is returned before anything
// is mutated, so a failed call is safe to retry. Otherwise a final
// incremental transfer is requested best-effort, the relationships
// are broken everywhere, and each volume's new replication status is
// reported: "error" for volumes in pools whose break failed against
// the chosen target, "failed-over" for the rest.
func (o *Orchestrator) CompleteFailover(ctx context.Context, volumes []mirror.VolumeRecord, explicitTarget string) (string, []mirror.VolumeStatusUpdate, error) {
	if len(volumes) == 0 {
		return "", nil, errors.NotValidf("failover without volumes")
	}
	poolSet := set.NewStrings()
	for _, v := range volumes {
		if v.ID == "" || v.Pool == "" {
			return "", nil, errors.NotValidf("volume record %q in pool %q", v.ID, v.Pool)
		}
		poolSet.Add(v.Pool)
	}
	pools := poolSet.Values()
	naturalsort.Sort(pools)

	target := explicitTarget
	if target != "" {
		if !set.NewStrings(o.config.Backend.ReplicationTargets()...).Contains(target) {
			return "", nil, errors.NotValidf(
				"failover target %q for backend %q", target, o.config.Backend.Name())
		}
	} else {
		var err error
		target, err = o.config.Selector.Choose(ctx, pools)
		if err != nil {
			return "", nil, errors.Trace(err)
		}
	}

	logger.Infof("failing over backend %q to %q: %d volumes in %d pools",
		o.config.Backend.Name(), target, len(volumes), len(pools))

	// Last chance to narrow the data loss window. The source may
	// already be gone, so failures here change nothing.
	o.config.Coordinator.UpdateAll(ctx, pools)

	failed := set.NewStrings(o.config.Coordinator.BreakAll(ctx, pools, target)...)

	updates := make([]mirror.VolumeStatusUpdate, 0, len(volumes))
	for _, v := range volumes {
		status := mirror.ReplicationFailedOver
		if failed.Contains(v.Pool) {
			status = mirror.ReplicationError
		}
		updates = append(updates, mirror.VolumeStatusUpdate{
			VolumeID:          v.ID,
			ReplicationStatus: status,
		})
	}
	o.config.Metrics.ObserveFailover(target, nil)
	return target, updates, nil
}
