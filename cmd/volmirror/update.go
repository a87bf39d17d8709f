// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"strings"

	"github.com/juju/cmd/v4"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"
)

const updateDoc = `
Request an incremental transfer, outside the relationship schedule,
for the given pools on every replication target configured for the
backend. Update narrows the window of writes a failover would lose.

Updates are best effort: a target that is unreachable or already
transferring is logged and skipped, and the remaining targets are
still updated.
`

type updateCommand struct {
	backendCommandBase

	backendName string
	pools       []string
}

func newUpdateCommand() cmd.Command {
	return &updateCommand{}
}

// Info implements cmd.Command.
func (c *updateCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "update",
		Args:    "<backend> <pool> [<pool> ...]",
		Purpose: "request incremental transfers on every replication target",
		Doc:     updateDoc,
		Examples: `
    volmirror update cinder-az1 nvol1 nvol2
`,
	}
}

// Init implements cmd.Command.
func (c *updateCommand) Init(args []string) error {
	if len(args) < 2 {
		return errors.New("update requires a backend name and at least one pool")
	}
	c.backendName = args[0]
	c.pools = naturalsort.Sort(args[1:])
	return nil
}

// Run implements cmd.Command.
func (c *updateCommand) Run(ctx *cmd.Context) error {
	store, err := c.store()
	if err != nil {
		return errors.Trace(err)
	}
	coord, cfg, err := c.coordinator(store, c.backendName)
	if err != nil {
		return errors.Trace(err)
	}
	targets := cfg.ReplicationTargets()
	if len(targets) == 0 {
		return errors.Errorf("backend %q has no replication targets", c.backendName)
	}
	coord.UpdateAll(context.Background(), c.pools)
	ctx.Verbosef("update requested for %s on %s", strings.Join(c.pools, ", "), strings.Join(targets, ", "))
	return nil
}
