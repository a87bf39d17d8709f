// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"

	"github.com/juju/cmd/v4"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/naturalsort"
	"github.com/juju/utils/v4/keyvalues"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
	"github.com/volmirror/volmirror/internal/replication"
)

const failoverDoc = `
Complete a failover away from a backend that has died. The volumes
the backend was serving are named on the command line, each as a
<volume-id>=<pool> pair.

Unless --target names a replication target explicitly, the target
holding the least stale copy of the affected pools is promoted: the
candidate whose worst lag across those pools is smallest. Mirrors
are then broken on every target so the promoted pools become
writable, and the new replication status of every volume is
reported. Volumes in pools that could not be promoted are reported
in the "error" state and need operator attention.

Failover is for disasters. Writes made after the last completed
transfer are lost, and the broken relationships must later be
re-established with "volmirror ensure" run against the promoted
backend.
`

type failoverCommand struct {
	backendCommandBase

	out cmd.Output

	backendName string
	target      string
	volumes     []mirror.VolumeRecord
}

func newFailoverCommand() cmd.Command {
	return &failoverCommand{}
}

// Info implements cmd.Command.
func (c *failoverCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "failover",
		Args:    "<backend> <volume-id>=<pool> [<volume-id>=<pool> ...]",
		Purpose: "promote a replication target of a dead backend",
		Doc:     failoverDoc,
		Examples: `
    volmirror failover cinder-az1 vol-7f3a=nvol1 vol-9c01=nvol1
    volmirror failover cinder-az1 --target cinder-az2 vol-7f3a=nvol1
`,
	}
}

// SetFlags implements cmd.Command.
func (c *failoverCommand) SetFlags(f *gnuflag.FlagSet) {
	c.backendCommandBase.SetFlags(f)
	f.StringVar(&c.target, "target", "", "Promote this replication target instead of the freshest")
	c.out.AddFlags(f, "tabular", map[string]cmd.Formatter{
		"yaml":    cmd.FormatYaml,
		"json":    cmd.FormatJson,
		"tabular": formatFailoverTabular,
	})
}

// Init implements cmd.Command.
func (c *failoverCommand) Init(args []string) error {
	if len(args) < 2 {
		return errors.New("failover requires a backend name and at least one <volume-id>=<pool> pair")
	}
	c.backendName = args[0]
	pairs, err := keyvalues.Parse(args[1:], false)
	if err != nil {
		return errors.Trace(err)
	}
	ids := make([]string, 0, len(pairs))
	for id := range pairs {
		ids = append(ids, id)
	}
	naturalsort.Sort(ids)
	for _, id := range ids {
		c.volumes = append(c.volumes, mirror.VolumeRecord{
			ID:                id,
			Pool:              pairs[id],
			ReplicationStatus: mirror.ReplicationEnabled,
		})
	}
	return nil
}

// failoverResult is the reported outcome of a completed failover.
type failoverResult struct {
	Target  string            `yaml:"target" json:"target"`
	Volumes map[string]string `yaml:"volumes" json:"volumes"`
}

// Run implements cmd.Command.
func (c *failoverCommand) Run(ctx *cmd.Context) error {
	store, err := c.store()
	if err != nil {
		return errors.Trace(err)
	}
	coord, cfg, err := c.coordinator(store, c.backendName)
	if err != nil {
		return errors.Trace(err)
	}
	selector, err := replication.NewTargetSelector(replication.SelectorConfig{
		Backend:   cfg,
		Provider:  store,
		NewClient: backend.NewClient,
	})
	if err != nil {
		return errors.Trace(err)
	}
	orch, err := replication.NewOrchestrator(replication.OrchestratorConfig{
		Backend:     cfg,
		Coordinator: coord,
		Selector:    selector,
	})
	if err != nil {
		return errors.Trace(err)
	}
	target, updates, err := orch.CompleteFailover(context.Background(), c.volumes, c.target)
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("backend %q failed over to %q", c.backendName, target)
	result := failoverResult{
		Target:  target,
		Volumes: make(map[string]string, len(updates)),
	}
	var failed int
	for _, update := range updates {
		result.Volumes[update.VolumeID] = update.ReplicationStatus.String()
		if update.ReplicationStatus == mirror.ReplicationError {
			failed++
		}
	}
	if err := c.out.Write(ctx, result); err != nil {
		return errors.Trace(err)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d volumes could not be promoted on %q", failed, len(updates), target)
	}
	return nil
}
