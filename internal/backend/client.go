// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package backend describes the storage backends that volmirror
// replicates between: the configuration recorded for each backend,
// the control client used to drive its storage controller, and the
// registry through which concrete client implementations are made
// available.
package backend

import (
	"context"

	"github.com/volmirror/volmirror/core/mirror"
)

// Well-known keys in the provisioning options reported for a pool.
// Backends may report additional, backend-specific keys; callers
// that do not understand a key must pass it through untouched.
const (
	// AttrSize is the pool size in GiB. Coerced to an int.
	AttrSize = "size"

	// AttrAggregate names the physical aggregate backing the pool.
	AttrAggregate = "aggregate"

	// AttrPoolType is the pool's provisioning type. See PoolType*.
	AttrPoolType = "pool-type"

	// AttrEncrypted reports whether the pool is encrypted at rest.
	AttrEncrypted = "encrypted"

	// AttrSnapshotPolicy names the snapshot policy applied to the pool.
	AttrSnapshotPolicy = "snapshot-policy"

	// AttrSnapshotReserve is the percentage of the pool reserved
	// for snapshots.
	AttrSnapshotReserve = "snapshot-reserve"

	// AttrSpaceGuarantee is the space guarantee style of the pool.
	AttrSpaceGuarantee = "space-guarantee"

	// AttrDedupeEnabled reports whether deduplication is enabled.
	AttrDedupeEnabled = "dedupe-enabled"

	// AttrCompressionEnabled reports whether compression is enabled.
	AttrCompressionEnabled = "compression-enabled"

	// AttrLanguage is the language setting of the pool.
	AttrLanguage = "language"
)

const (
	// PoolTypeReadWrite marks a pool that serves host I/O.
	PoolTypeReadWrite = "rw"

	// PoolTypeReplicationTarget marks a pool that only receives
	// replicated data and cannot serve host I/O until broken off.
	PoolTypeReplicationTarget = "dp"
)

// ControlClient drives the storage controller behind a single
// configured backend. Implementations talk to a remote management
// endpoint; no results are cached, so the controller remains the
// sole source of truth for mirror and pool state.
//
// Mirror operations address relationships by their full endpoint
// pair. Pool operations take bare pool names, which are resolved
// against the backend's configured vserver.
type ControlClient interface {
	// GetMirrors returns the mirror relationships known to the
	// controller that match the supplied query. An empty query
	// matches everything.
	GetMirrors(ctx context.Context, q mirror.Query) ([]mirror.Info, error)

	// CreateMirror records a new mirror relationship with the
	// given transfer schedule. The relationship starts out
	// uninitialized; no data moves until InitializeMirror.
	CreateMirror(ctx context.Context, ref mirror.Ref, schedule string) error

	// InitializeMirror starts the baseline transfer for a
	// relationship created by CreateMirror.
	InitializeMirror(ctx context.Context, ref mirror.Ref) error

	// QuiesceMirror disables future transfers for the
	// relationship. A transfer already in flight is left to run;
	// the relationship status reports quiescing until it settles.
	QuiesceMirror(ctx context.Context, ref mirror.Ref) error

	// AbortMirror cancels an in-flight transfer. When
	// clearCheckpoint is true the transfer restarts from scratch
	// rather than from the abandoned checkpoint.
	AbortMirror(ctx context.Context, ref mirror.Ref, clearCheckpoint bool) error

	// BreakMirror breaks the relationship, converting the
	// destination pool into a writable read-write pool.
	BreakMirror(ctx context.Context, ref mirror.Ref) error

	// ResyncMirror re-establishes a broken-off relationship,
	// resuming incremental transfers from the common snapshot.
	ResyncMirror(ctx context.Context, ref mirror.Ref) error

	// ResumeMirror re-enables transfers for a quiesced
	// relationship.
	ResumeMirror(ctx context.Context, ref mirror.Ref) error

	// UpdateMirror triggers an incremental transfer outside the
	// relationship's schedule.
	UpdateMirror(ctx context.Context, ref mirror.Ref) error

	// DeleteMirror removes the relationship on the destination
	// controller.
	DeleteMirror(ctx context.Context, ref mirror.Ref) error

	// ReleaseMirror removes the source controller's bookkeeping
	// for a relationship, discarding the snapshots held for it.
	ReleaseMirror(ctx context.Context, ref mirror.Ref) error

	// MountPool exposes a pool in the backend's namespace so that
	// hosts can address it. Used after BreakMirror to bring a
	// replication target into service.
	MountPool(ctx context.Context, pool string) error

	// ProvisioningOptions reports the provisioning attributes of
	// a pool, using the Attr* keys above for the well-known ones.
	ProvisioningOptions(ctx context.Context, pool string) (map[string]interface{}, error)

	// IsEncrypted reports whether the pool is encrypted at rest.
	IsEncrypted(ctx context.Context, pool string) (bool, error)

	// CreatePool creates a pool of the given size on the named
	// aggregate. Any further provisioning attributes are supplied
	// in attrs.
	CreatePool(ctx context.Context, pool, aggregate string, sizeGiB int, attrs map[string]interface{}) error
}

// NewControlClientFunc returns a control client for the backend
// described by cfg. The context governs any connection establishment
// the implementation performs.
type NewControlClientFunc func(ctx context.Context, cfg Config) (ControlClient, error)
