// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"context"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
)

// SelectorConfig holds the dependencies of a TargetSelector.
type SelectorConfig struct {
	// Backend is the backend being failed away from.
	Backend backend.Config

	// Provider resolves the configuration of replication targets.
	Provider backend.ConfigProvider

	// NewClient opens control clients for candidate targets.
	NewClient backend.NewControlClientFunc
}

// Validate returns an error if the config cannot be relied upon.
func (config SelectorConfig) Validate() error {
	if config.Backend.Name() == "" {
		return errors.NotValidf("empty Backend")
	}
	if config.Provider == nil {
		return errors.NotValidf("nil Provider")
	}
	if config.NewClient == nil {
		return errors.NotValidf("nil NewClient")
	}
	return nil
}

// TargetSelector picks the failover target whose copy of the
// protected pools is freshest.
type TargetSelector struct {
	config SelectorConfig
}

// NewTargetSelector returns a TargetSelector for the backend
// described by config.
func NewTargetSelector(config SelectorConfig) (*TargetSelector, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &TargetSelector{config: config}, nil
}

// Choose returns the configured replication target with the smallest
// worst-case lag across the given protected pools. A candidate's
// quality is the largest lag among its healthy relationships for
// those pools; candidates with no such relationship, or that cannot
// be queried, are skipped. Ties keep the earlier configured target.
// If no candidate qualifies the error satisfies errors.IsNotFound
// and failover must not proceed.
func (s *TargetSelector) Choose(ctx context.Context, pools []string) (string, error) {
	protected := set.NewStrings(pools...)
	var (
		bestName string
		bestLag  time.Duration
		found    bool
	)
	for _, target := range s.config.Backend.ReplicationTargets() {
		lag, ok := s.candidateLag(ctx, target, protected)
		if !ok {
			continue
		}
		logger.Debugf("candidate %q worst lag %s", target, lag)
		if !found || lag < bestLag {
			found, bestName, bestLag = true, target, lag
		}
	}
	if !found {
		return "", errors.NotFoundf("failover target for backend %q", s.config.Backend.Name())
	}
	logger.Infof("selected failover target %q with worst lag %s", bestName, bestLag)
	return bestName, nil
}

// candidateLag reports the worst lag among a candidate's healthy
// relationships for the protected pools. Candidates are consulted
// directly: the source backend may already be dead, so only the
// destination side's view can be trusted.
func (s *TargetSelector) candidateLag(ctx context.Context, target string, protected set.Strings) (time.Duration, bool) {
	targetConfig, err := s.config.Provider.BackendConfig(target)
	if err != nil {
		logger.Warningf("cannot resolve replication target %q: %v", target, err)
		return 0, false
	}
	client, err := s.config.NewClient(ctx, targetConfig)
	if err != nil {
		logger.Warningf("cannot reach replication target %q: %v", target, err)
		return 0, false
	}
	infos, err := client.GetMirrors(ctx, mirror.Query{
		Source:      mirror.Endpoint{Vserver: s.config.Backend.Vserver()},
		Destination: mirror.Endpoint{Vserver: targetConfig.Vserver()},
	})
	if err != nil {
		logger.Warningf("cannot list mirrors on replication target %q: %v", target, err)
		return 0, false
	}
	worst := time.Duration(-1)
	for _, info := range infos {
		if !protected.Contains(info.Destination.Pool) {
			continue
		}
		if !info.Healthy() {
			logger.Debugf("ignoring mirror %s in state %q", info.Ref, info.State)
			continue
		}
		if info.LagTime > worst {
			worst = info.LagTime
		}
	}
	if worst < 0 {
		logger.Debugf("candidate %q has no healthy mirrors for the protected pools", target)
		return 0, false
	}
	return worst, true
}
