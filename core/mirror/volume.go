// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror

// ReplicationStatus records where a volume stands relative to the
// replication machinery protecting its pool.
type ReplicationStatus string

const (
	// ReplicationEnabled means the volume's pool is mirrored and the
	// volume is being served from the primary backend.
	ReplicationEnabled ReplicationStatus = "enabled"

	// ReplicationFailedOver means the volume is now served from a
	// promoted secondary after a completed failover.
	ReplicationFailedOver ReplicationStatus = "failed-over"

	// ReplicationError means the volume's pool could not be promoted
	// during failover; the volume needs operator attention.
	ReplicationError ReplicationStatus = "error"
)

// String returns a string representation of the ReplicationStatus.
func (s ReplicationStatus) String() string {
	return string(s)
}

// VolumeRecord ties a volume to the pool backing it. The control plane
// reads these; it never creates or deletes them.
type VolumeRecord struct {
	ID   string
	Pool string

	ReplicationStatus ReplicationStatus
}

// VolumeStatusUpdate is the replication status a volume should be moved
// to after a failover. Persisting updates is the caller's concern.
type VolumeStatusUpdate struct {
	VolumeID string

	ReplicationStatus ReplicationStatus
}
