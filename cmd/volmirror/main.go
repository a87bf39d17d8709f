// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command volmirror manages asynchronous pool replication between
// storage backends: establishing mirror relationships, forcing
// incremental transfers, reporting replica staleness, and completing
// failover to a secondary backend.
package main

import (
	"fmt"
	"os"

	"github.com/juju/cmd/v4"

	// Register the in-memory control client type.
	_ "github.com/volmirror/volmirror/internal/backend/dummy"
)

var volmirrorDoc = `
volmirror drives the replication side of a fleet of storage backends.
Backends, their replication targets and their aggregate maps are
described in a YAML registry file, located via --config, the
VOLMIRROR_BACKENDS environment variable, or ./backends.yaml.

Mirrors are asynchronous: a destination pool trails its source by up
to one transfer interval. Failover breaks the mirrors and promotes
the replica holding the least stale copy of the protected pools, so
writes made after the last completed transfer are lost.
`

// Main runs the volmirror command line with the given arguments,
// which should begin with the program name. The return value is the
// process exit code.
func Main(args []string) int {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	return cmd.Main(newSuperCommand(), ctx, args[1:])
}

func newSuperCommand() *cmd.SuperCommand {
	sc := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    "volmirror",
		Doc:     volmirrorDoc,
		Purpose: "manage pool replication between storage backends",
		Log:     &cmd.Log{},
	})
	sc.Register(newEnsureCommand())
	sc.Register(newUpdateCommand())
	sc.Register(newStatusCommand())
	sc.Register(newFailoverCommand())
	return sc
}

func main() {
	os.Exit(Main(os.Args))
}
