// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"context"

	"github.com/juju/errors"

	"github.com/volmirror/volmirror/internal/backend"
)

// DestinationProvisioner creates replication-target pools shaped
// after their source pool.
type DestinationProvisioner struct {
	source      backend.Config
	destination backend.Config
	src         backend.ControlClient
	dst         backend.ControlClient
}

// NewDestinationProvisioner returns a provisioner creating pools on
// destination that mirror pools on source.
func NewDestinationProvisioner(source, destination backend.Config, src, dst backend.ControlClient) *DestinationProvisioner {
	return &DestinationProvisioner{
		source:      source,
		destination: destination,
		src:         src,
		dst:         dst,
	}
}

// CreateDestinationPool creates dstPool on the destination backend
// with the provisioning options of srcPool, adjusted for replication:
// the size and aggregate are consumed positionally, the pool type is
// forced to the replication-target type, and an encrypted source
// forces encryption on. The source aggregate must have a mapping for
// the destination backend; a missing mapping or unknown source size
// is a configuration error and nothing is created.
func (p *DestinationProvisioner) CreateDestinationPool(ctx context.Context, srcPool, dstPool string) error {
	opts, err := p.src.ProvisioningOptions(ctx, srcPool)
	if err != nil {
		return NewOperationError(p.source.Name(), "get provisioning options", err)
	}

	size, ok := poolSize(opts[backend.AttrSize])
	if !ok {
		return errors.NotValidf("source pool %q without a size", srcPool)
	}
	srcAggr, _ := opts[backend.AttrAggregate].(string)
	if srcAggr == "" {
		return errors.NotValidf("source pool %q without an aggregate", srcPool)
	}
	aggrMap := p.source.AggregateMapTo(p.destination.Name())
	dstAggr, ok := aggrMap[srcAggr]
	if !ok {
		return errors.NotValidf(
			"no aggregate mapped to %q for backend %q", srcAggr, p.destination.Name())
	}

	encrypted, err := p.src.IsEncrypted(ctx, srcPool)
	if err != nil {
		return NewOperationError(p.source.Name(), "get encryption state", err)
	}

	attrs := make(map[string]interface{}, len(opts))
	for k, v := range opts {
		switch k {
		case backend.AttrSize, backend.AttrAggregate, backend.AttrPoolType, backend.AttrEncrypted:
			// Consumed positionally or forced below.
		default:
			attrs[k] = v
		}
	}
	attrs[backend.AttrPoolType] = backend.PoolTypeReplicationTarget
	if encrypted {
		attrs[backend.AttrEncrypted] = true
	}

	logger.Infof("creating replication target pool %q on backend %q aggregate %q",
		dstPool, p.destination.Name(), dstAggr)
	if err := p.dst.CreatePool(ctx, dstPool, dstAggr, size, attrs); err != nil {
		return NewOperationError(p.destination.Name(), "create pool", err)
	}
	return nil
}

func poolSize(v interface{}) (int, bool) {
	switch size := v.(type) {
	case int:
		return size, size > 0
	case int64:
		return int(size), size > 0
	case uint64:
		return int(size), size > 0
	}
	return 0, false
}
