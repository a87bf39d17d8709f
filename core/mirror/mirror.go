// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package mirror holds the domain model for asynchronous pool mirroring:
// the identity of a mirror relationship, the states and statuses reported
// for it by a storage controller, and the replication bookkeeping attached
// to volumes living on mirrored pools.
package mirror

import (
	"fmt"
	"time"
)

// State describes the mirror state of a relationship as reported by the
// controller that owns the destination pool.
type State string

const (
	// StateUninitialized means the relationship exists but no baseline
	// transfer has completed yet; the destination holds no usable copy.
	StateUninitialized State = "uninitialized"

	// StateSnapmirrored means the destination is tracking the source
	// according to the relationship schedule.
	StateSnapmirrored State = "snapmirrored"

	// StateBrokenOff means the destination has been promoted to an
	// independent read-write pool and is no longer tracking the source.
	StateBrokenOff State = "broken-off"
)

// String returns a string representation of the State.
func (s State) String() string {
	return string(s)
}

// RelationshipStatus describes transfer activity on a relationship,
// orthogonal to its mirror State.
type RelationshipStatus string

const (
	StatusIdle         RelationshipStatus = "idle"
	StatusTransferring RelationshipStatus = "transferring"
	StatusQuiescing    RelationshipStatus = "quiescing"
	StatusQuiesced     RelationshipStatus = "quiesced"
)

// String returns a string representation of the RelationshipStatus.
func (s RelationshipStatus) String() string {
	return string(s)
}

// Endpoint identifies one side of a mirror relationship: a pool within
// the administrative partition (vserver) of a backend.
type Endpoint struct {
	Vserver string
	Pool    string
}

// String returns the endpoint in vserver:pool form.
func (e Endpoint) String() string {
	return e.Vserver + ":" + e.Pool
}

// IsZero reports whether the endpoint carries no addressing information.
func (e Endpoint) IsZero() bool {
	return e.Vserver == "" && e.Pool == ""
}

// Ref addresses a single directed mirror relationship. At most one
// relationship exists per (source pool, destination pool) pair.
type Ref struct {
	Source      Endpoint
	Destination Endpoint
}

// String returns the relationship in source -> destination form.
func (r Ref) String() string {
	return fmt.Sprintf("%s -> %s", r.Source, r.Destination)
}

// Key returns a stable identity for the relationship, suitable for
// keyed locking and deduplication.
func (r Ref) Key() string {
	return r.Source.String() + ">" + r.Destination.String()
}

// Query selects relationships known to a controller. Empty endpoint
// fields match anything.
type Query struct {
	Source      Endpoint
	Destination Endpoint
}

// Matches reports whether info satisfies the query.
func (q Query) Matches(info Info) bool {
	match := func(want, got Endpoint) bool {
		if want.Vserver != "" && want.Vserver != got.Vserver {
			return false
		}
		if want.Pool != "" && want.Pool != got.Pool {
			return false
		}
		return true
	}
	return match(q.Source, info.Source) && match(q.Destination, info.Destination)
}

// Info describes one mirror relationship as reported by a controller.
// LagTime is the time since the last completed transfer, the staleness
// metric used when ranking failover candidates.
type Info struct {
	Ref

	State           State
	Status          RelationshipStatus
	LagTime         time.Duration
	LastTransferEnd time.Time
	Schedule        string
}

// Healthy reports whether the relationship is established and tracking
// its source.
func (i Info) Healthy() bool {
	return i.State == StateSnapmirrored
}
