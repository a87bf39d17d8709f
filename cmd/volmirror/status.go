// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"time"

	"github.com/juju/cmd/v4"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/naturalsort"
)

const statusDoc = `
Report the mirror relationships protecting the given pools of a
backend, one section per replication target. With no pools named,
every relationship from the backend's vserver is reported.

Lag is measured from the end of the last completed transfer, so it
shows how stale each replica is. Failover promotes the target whose
worst lag across the affected pools is smallest.
`

type statusCommand struct {
	backendCommandBase

	out cmd.Output

	backendName string
	pools       []string
	target      string
}

func newStatusCommand() cmd.Command {
	return &statusCommand{}
}

// Info implements cmd.Command.
func (c *statusCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "status",
		Args:    "<backend> [<pool> ...]",
		Purpose: "report mirror state and staleness per replication target",
		Doc:     statusDoc,
		Examples: `
    volmirror status cinder-az1
    volmirror status cinder-az1 nvol1 --format yaml
    volmirror status cinder-az1 --target cinder-az2
`,
	}
}

// SetFlags implements cmd.Command.
func (c *statusCommand) SetFlags(f *gnuflag.FlagSet) {
	c.backendCommandBase.SetFlags(f)
	f.StringVar(&c.target, "target", "", "Report only the named replication target")
	c.out.AddFlags(f, "tabular", map[string]cmd.Formatter{
		"yaml":    cmd.FormatYaml,
		"json":    cmd.FormatJson,
		"tabular": formatStatusTabular,
	})
}

// Init implements cmd.Command.
func (c *statusCommand) Init(args []string) error {
	if len(args) < 1 {
		return errors.New("status requires a backend name")
	}
	c.backendName = args[0]
	c.pools = naturalsort.Sort(args[1:])
	return nil
}

// mirrorStatus is one reported relationship. The unexported fields
// feed the tabular formatter.
type mirrorStatus struct {
	Source      string `yaml:"source" json:"source"`
	Destination string `yaml:"destination" json:"destination"`
	State       string `yaml:"state" json:"state"`
	Status      string `yaml:"status,omitempty" json:"status,omitempty"`
	Lag         string `yaml:"lag,omitempty" json:"lag,omitempty"`
	Schedule    string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	lagTime time.Duration
	healthy bool
}

// Run implements cmd.Command.
func (c *statusCommand) Run(ctx *cmd.Context) error {
	store, err := c.store()
	if err != nil {
		return errors.Trace(err)
	}
	coord, cfg, err := c.coordinator(store, c.backendName)
	if err != nil {
		return errors.Trace(err)
	}
	targets := cfg.ReplicationTargets()
	if c.target != "" {
		if !set.NewStrings(targets...).Contains(c.target) {
			return errors.NotFoundf("replication target %q of backend %q", c.target, c.backendName)
		}
		targets = []string{c.target}
	}
	if len(targets) == 0 {
		return errors.Errorf("backend %q has no replication targets", c.backendName)
	}
	result := make(map[string][]mirrorStatus, len(targets))
	for _, target := range targets {
		infos, err := coord.ListMirrors(context.Background(), target, c.pools)
		if err != nil {
			return errors.Trace(err)
		}
		statuses := make([]mirrorStatus, 0, len(infos))
		for _, info := range infos {
			s := mirrorStatus{
				Source:      info.Source.String(),
				Destination: info.Destination.String(),
				State:       info.State.String(),
				Status:      info.Status.String(),
				Schedule:    info.Schedule,
				lagTime:     info.LagTime,
				healthy:     info.Healthy(),
			}
			if info.Healthy() {
				s.Lag = info.LagTime.Round(time.Second).String()
			}
			statuses = append(statuses, s)
		}
		result[target] = sortStatuses(statuses)
	}
	return c.out.Write(ctx, result)
}

// sortStatuses orders relationships naturally by source endpoint,
// then destination. Controllers report mirrors in no useful order.
func sortStatuses(statuses []mirrorStatus) []mirrorStatus {
	byKey := make(map[string]mirrorStatus, len(statuses))
	keys := make([]string, 0, len(statuses))
	for _, s := range statuses {
		key := s.Source + ">" + s.Destination
		byKey[key] = s
		keys = append(keys, key)
	}
	naturalsort.Sort(keys)
	sorted := make([]mirrorStatus, len(keys))
	for i, key := range keys {
		sorted[i] = byKey[key]
	}
	return sorted
}
