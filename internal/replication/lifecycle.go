// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package replication drives asynchronous mirror relationships
// between storage backends: establishing and repairing them,
// provisioning replication-target pools, coordinating whole-fleet
// maintenance, and selecting and completing failover.
//
// Components here hold no mirror state of their own. Every decision
// is made against what the storage controllers report, so concurrent
// control planes converge on the controllers' view.
package replication

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
)

var logger = loggo.GetLogger("volmirror.replication")

const (
	// defaultSchedule is the transfer schedule applied to mirrors
	// we establish.
	defaultSchedule = "hourly"

	// defaultQuiesceInterval is how often QuiesceThenAbort polls
	// for the relationship to drain.
	defaultQuiesceInterval = 5 * time.Second
)

// ManagerConfig holds the dependencies of a MirrorManager. Source is
// the backend whose pools are protected; Destination is one of its
// replication targets.
type ManagerConfig struct {
	Source            backend.Config
	Destination       backend.Config
	SourceClient      backend.ControlClient
	DestinationClient backend.ControlClient
	Clock             clock.Clock

	// QuiesceInterval overrides the drain poll interval.
	// Zero means the 5s default.
	QuiesceInterval time.Duration

	// Metrics may be nil.
	Metrics *Metrics
}

// Validate returns an error if the config cannot be relied upon.
func (config ManagerConfig) Validate() error {
	if config.Source.Name() == "" {
		return errors.NotValidf("empty Source")
	}
	if config.Destination.Name() == "" {
		return errors.NotValidf("empty Destination")
	}
	if config.SourceClient == nil {
		return errors.NotValidf("nil SourceClient")
	}
	if config.DestinationClient == nil {
		return errors.NotValidf("nil DestinationClient")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// MirrorManager manages the lifecycle of the mirror relationships
// from one source backend to one destination backend.
type MirrorManager struct {
	source          backend.Config
	destination     backend.Config
	src             backend.ControlClient
	dst             backend.ControlClient
	clock           clock.Clock
	quiesceInterval time.Duration
	metrics         *Metrics
	provisioner     *DestinationProvisioner
}

// NewMirrorManager returns a MirrorManager for the backend pair
// described by config.
func NewMirrorManager(config ManagerConfig) (*MirrorManager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	interval := config.QuiesceInterval
	if interval <= 0 {
		interval = defaultQuiesceInterval
	}
	return &MirrorManager{
		source:          config.Source,
		destination:     config.Destination,
		src:             config.SourceClient,
		dst:             config.DestinationClient,
		clock:           config.Clock,
		quiesceInterval: interval,
		metrics:         config.Metrics,
		provisioner: NewDestinationProvisioner(
			config.Source, config.Destination,
			config.SourceClient, config.DestinationClient,
		),
	}, nil
}

// Ref returns the relationship reference for a source and
// destination pool of this manager's backend pair.
func (m *MirrorManager) Ref(srcPool, dstPool string) mirror.Ref {
	return mirror.Ref{
		Source:      mirror.Endpoint{Vserver: m.source.Vserver(), Pool: srcPool},
		Destination: mirror.Endpoint{Vserver: m.destination.Vserver(), Pool: dstPool},
	}
}

func (m *MirrorManager) destErr(op string, err error) error {
	return NewOperationError(m.destination.Name(), op, err)
}

// lookup returns the controller's view of one relationship.
func (m *MirrorManager) lookup(ctx context.Context, ref mirror.Ref) (mirror.Info, error) {
	infos, err := m.dst.GetMirrors(ctx, mirror.Query{
		Source:      ref.Source,
		Destination: ref.Destination,
	})
	if err != nil {
		return mirror.Info{}, m.destErr("get mirrors", err)
	}
	if len(infos) == 0 {
		return mirror.Info{}, errors.NotFoundf("mirror %s", ref)
	}
	return infos[0], nil
}

// Create brings the relationship for the given pools into a healthy
// replicating state. It is idempotent: a healthy relationship is
// left alone, a missing destination pool is provisioned, a missing
// relationship is created and initialized, and a quiesced or broken
// relationship is repaired on a best effort basis.
func (m *MirrorManager) Create(ctx context.Context, srcPool, dstPool string) (err error) {
	defer func() { m.metrics.ObserveOperation(m.destination.Name(), "ensure", err) }()

	if err := m.ensureDestinationPool(ctx, srcPool, dstPool); err != nil {
		return errors.Trace(err)
	}
	ref := m.Ref(srcPool, dstPool)
	info, err := m.lookup(ctx, ref)
	if errors.IsNotFound(err) {
		return errors.Trace(m.establish(ctx, ref))
	}
	if err != nil {
		return errors.Trace(err)
	}

	switch {
	case info.State == mirror.StateUninitialized:
		if err := m.dst.InitializeMirror(ctx, ref); err != nil {
			return m.destErr("initialize mirror", err)
		}
	case info.State == mirror.StateBrokenOff:
		logger.Infof("mirror %s is broken off, resyncing", ref)
		if err := m.dst.ResyncMirror(ctx, ref); err != nil {
			logger.Warningf("cannot resync mirror %s: %v", ref, err)
		}
	case info.Status == mirror.StatusQuiesced || info.Status == mirror.StatusQuiescing:
		logger.Infof("mirror %s is quiesced, resuming", ref)
		if err := m.dst.ResumeMirror(ctx, ref); err != nil {
			logger.Warningf("cannot resume mirror %s: %v", ref, err)
		}
	}
	return nil
}

func (m *MirrorManager) ensureDestinationPool(ctx context.Context, srcPool, dstPool string) error {
	_, err := m.dst.ProvisioningOptions(ctx, dstPool)
	if err == nil {
		return nil
	}
	if !errors.IsNotFound(err) {
		return m.destErr("get provisioning options", err)
	}
	return errors.Trace(m.provisioner.CreateDestinationPool(ctx, srcPool, dstPool))
}

func (m *MirrorManager) establish(ctx context.Context, ref mirror.Ref) error {
	logger.Infof("creating mirror %s", ref)
	err := m.dst.CreateMirror(ctx, ref, defaultSchedule)
	if err != nil && !errors.IsAlreadyExists(err) {
		return m.destErr("create mirror", err)
	}
	if err := m.dst.InitializeMirror(ctx, ref); err != nil {
		return m.destErr("initialize mirror", err)
	}
	return nil
}

// QuiesceThenAbort disables transfers for the relationship and waits
// for it to drain, polling until the source backend's quiesce
// timeout expires. A transfer still running at the deadline is
// aborted without clearing its restart checkpoint, so replication
// can resume from it later.
func (m *MirrorManager) QuiesceThenAbort(ctx context.Context, srcPool, dstPool string) (err error) {
	defer func() { m.metrics.ObserveOperation(m.destination.Name(), "quiesce", err) }()

	ref := m.Ref(srcPool, dstPool)
	if err := m.dst.QuiesceMirror(ctx, ref); err != nil {
		return m.destErr("quiesce mirror", err)
	}

	timeout := m.source.QuiesceTimeout()
	attempts := int(timeout / m.quiesceInterval)
	if attempts < 1 {
		attempts = 1
	}
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			info, err := m.lookup(ctx, ref)
			if err != nil {
				return errors.Trace(err)
			}
			if info.Status == mirror.StatusQuiesced {
				return nil
			}
			return errors.Errorf("mirror %s is still %s", ref, info.Status)
		},
		IsFatalError: func(err error) bool {
			return IsOperationError(err) || errors.IsNotFound(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("waiting for mirror %s to drain (attempt %d): %v", ref, attempt, err)
		},
		Attempts: attempts,
		Delay:    m.quiesceInterval,
		Clock:    m.clock,
		Stop:     ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		logger.Warningf("mirror %s did not drain within %s, aborting transfer", ref, timeout)
		if err := m.dst.AbortMirror(ctx, ref, false); err != nil && !errors.IsNotFound(err) {
			return m.destErr("abort transfer", err)
		}
		return nil
	default:
		return errors.Trace(err)
	}
}

// Break makes the destination pool writable: the relationship is
// drained, broken off, and the pool mounted into the destination
// namespace. A fresh replication target has no junction path, so the
// mount is what makes the pool addressable by hosts.
func (m *MirrorManager) Break(ctx context.Context, srcPool, dstPool string) (err error) {
	defer func() { m.metrics.ObserveOperation(m.destination.Name(), "break", err) }()

	if err := m.QuiesceThenAbort(ctx, srcPool, dstPool); err != nil {
		return errors.Trace(err)
	}
	ref := m.Ref(srcPool, dstPool)
	if err := m.dst.BreakMirror(ctx, ref); err != nil {
		return m.destErr("break mirror", err)
	}
	if err := m.dst.MountPool(ctx, dstPool); err != nil {
		return m.destErr("mount pool", err)
	}
	return nil
}

// Resync re-establishes a broken-off relationship.
func (m *MirrorManager) Resync(ctx context.Context, srcPool, dstPool string) (err error) {
	defer func() { m.metrics.ObserveOperation(m.destination.Name(), "resync", err) }()

	if err := m.dst.ResyncMirror(ctx, m.Ref(srcPool, dstPool)); err != nil {
		return m.destErr("resync mirror", err)
	}
	return nil
}

// Resume re-enables transfers for a quiesced relationship.
func (m *MirrorManager) Resume(ctx context.Context, srcPool, dstPool string) (err error) {
	defer func() { m.metrics.ObserveOperation(m.destination.Name(), "resume", err) }()

	if err := m.dst.ResumeMirror(ctx, m.Ref(srcPool, dstPool)); err != nil {
		return m.destErr("resume mirror", err)
	}
	return nil
}

// Update requests an incremental transfer outside the relationship's
// schedule.
func (m *MirrorManager) Update(ctx context.Context, srcPool, dstPool string) (err error) {
	defer func() { m.metrics.ObserveOperation(m.destination.Name(), "update", err) }()

	if err := m.dst.UpdateMirror(ctx, m.Ref(srcPool, dstPool)); err != nil {
		return m.destErr("update mirror", err)
	}
	return nil
}

// Delete tears the relationship down. Cleanup must win: an already
// absent transfer, relationship or source entry is treated as
// success. When release is true the source controller's bookkeeping
// is removed too, on a best effort basis only, since the source is
// commonly the dead site after a failover.
func (m *MirrorManager) Delete(ctx context.Context, srcPool, dstPool string, release bool) (err error) {
	defer func() { m.metrics.ObserveOperation(m.destination.Name(), "delete", err) }()

	ref := m.Ref(srcPool, dstPool)
	if err := m.dst.AbortMirror(ctx, ref, true); err != nil && !errors.IsNotFound(err) {
		return m.destErr("abort transfer", err)
	}
	if err := m.dst.DeleteMirror(ctx, ref); err != nil && !errors.IsNotFound(err) {
		return m.destErr("delete mirror", err)
	}
	if !release {
		return nil
	}
	if err := m.src.ReleaseMirror(ctx, ref); err != nil && !errors.IsNotFound(err) {
		logger.Warningf("cannot release mirror %s on backend %q: %v", ref, m.source.Name(), err)
	}
	return nil
}

// List reports the relationships between the manager's backend pair.
// A non-empty pools argument restricts the result to relationships
// whose source pool is named.
func (m *MirrorManager) List(ctx context.Context, pools []string) ([]mirror.Info, error) {
	infos, err := m.dst.GetMirrors(ctx, mirror.Query{
		Source:      mirror.Endpoint{Vserver: m.source.Vserver()},
		Destination: mirror.Endpoint{Vserver: m.destination.Vserver()},
	})
	if err != nil {
		return nil, m.destErr("get mirrors", err)
	}
	if len(pools) == 0 {
		return infos, nil
	}
	want := set.NewStrings(pools...)
	var out []mirror.Info
	for _, info := range infos {
		if want.Contains(info.Source.Pool) {
			out = append(out, info)
		}
	}
	return out, nil
}
