// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"

	"github.com/juju/clock"
	"github.com/juju/cmd/v4"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/volmirror/volmirror/internal/backend"
	"github.com/volmirror/volmirror/internal/replication"
)

// backendsPathEnvKey names the environment variable consulted for
// the backend registry file when --config is not given.
const backendsPathEnvKey = "VOLMIRROR_BACKENDS"

const defaultBackendsPath = "backends.yaml"

// backendCommandBase supplies the backend registry plumbing shared
// by the volmirror subcommands.
type backendCommandBase struct {
	cmd.CommandBase

	configPath string
}

// SetFlags implements cmd.Command.
func (c *backendCommandBase) SetFlags(f *gnuflag.FlagSet) {
	c.CommandBase.SetFlags(f)
	f.StringVar(&c.configPath, "config", "", "Path to the backend registry file")
}

// store opens the backend registry named by --config, falling back
// to $VOLMIRROR_BACKENDS and then ./backends.yaml.
func (c *backendCommandBase) store() (*backend.FileStore, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv(backendsPathEnvKey)
	}
	if path == "" {
		path = defaultBackendsPath
	}
	store, err := backend.NewFileStore(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return store, nil
}

// coordinator returns a replication coordinator for the named
// backend, along with the backend's resolved configuration.
func (c *backendCommandBase) coordinator(provider backend.ConfigProvider, name string) (*replication.Coordinator, backend.Config, error) {
	cfg, err := provider.BackendConfig(name)
	if err != nil {
		return nil, backend.Config{}, errors.Trace(err)
	}
	coord, err := replication.NewCoordinator(replication.CoordinatorConfig{
		Backend:   cfg,
		Provider:  provider,
		NewClient: backend.NewClient,
		Clock:     clock.WallClock,
	})
	if err != nil {
		return nil, backend.Config{}, errors.Trace(err)
	}
	return coord, cfg, nil
}
