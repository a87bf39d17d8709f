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

const ensureDoc = `
Establish mirror relationships for the given pools on every
replication target configured for the backend. Missing destination
pools are provisioned first, shaped like their sources and placed by
the backend's aggregate map.

Ensure converges: relationships already tracking their source are
left alone, quiesced relationships are resumed, and broken-off
relationships are resynchronized back into the mirror. Resync
discards any writes made to the destination since the break.
`

type ensureCommand struct {
	backendCommandBase

	backendName string
	pools       []string
}

func newEnsureCommand() cmd.Command {
	return &ensureCommand{}
}

// Info implements cmd.Command.
func (c *ensureCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "ensure",
		Args:    "<backend> <pool> [<pool> ...]",
		Purpose: "establish mirrors for pools on every replication target",
		Doc:     ensureDoc,
		Examples: `
    volmirror ensure cinder-az1 nvol1 nvol2
`,
	}
}

// Init implements cmd.Command.
func (c *ensureCommand) Init(args []string) error {
	if len(args) < 2 {
		return errors.New("ensure requires a backend name and at least one pool")
	}
	c.backendName = args[0]
	c.pools = naturalsort.Sort(args[1:])
	return nil
}

// Run implements cmd.Command.
func (c *ensureCommand) Run(ctx *cmd.Context) error {
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
	if err := coord.EnsureAll(context.Background(), c.pools); err != nil {
		return errors.Trace(err)
	}
	ctx.Verbosef("ensured mirrors for %s on %s", strings.Join(c.pools, ", "), strings.Join(targets, ", "))
	return nil
}
