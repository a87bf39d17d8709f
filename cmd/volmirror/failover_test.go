// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"time"

	"github.com/juju/cmd/v4/cmdtesting"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/volmirror/volmirror/internal/backend"
	"github.com/volmirror/volmirror/internal/backend/dummy"
)

type failoverSuite struct {
	commandSuite
}

var _ = gc.Suite(&failoverSuite{})

func (s *failoverSuite) TestInitRequiresArgs(c *gc.C) {
	err := cmdtesting.InitCommand(newFailoverCommand(), []string{"dev0"})
	c.Assert(err, gc.ErrorMatches,
		"failover requires a backend name and at least one <volume-id>=<pool> pair")
}

func (s *failoverSuite) TestInitRejectsBarePool(c *gc.C) {
	err := cmdtesting.InitCommand(newFailoverCommand(), []string{"dev0", "vol-1"})
	c.Assert(err, gc.ErrorMatches, `expected "key=value", got "vol-1"`)
}

func (s *failoverSuite) TestPromotesFreshestTarget(c *gc.C) {
	s.ensurePools(c, "nvol1", "nvol2")
	s.setLags(5*time.Minute, 30*time.Second, "nvol1", "nvol2")

	ctx, err := cmdtesting.RunCommand(c, newFailoverCommand(),
		"dev0", "vol-1=nvol1", "vol-2=nvol2", "--config", s.configPath)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stderr(ctx), gc.Equals,
		"backend \"dev0\" failed over to \"fallback2\"\n")
	c.Check(cmdtesting.Stdout(ctx), gc.Equals, ""+
		"VOLUME  STATUS\n"+
		"vol-1   failed-over\n"+
		"vol-2   failed-over\n")

	// Mirrors are broken on every target, not just the chosen one.
	for _, vserver := range []string{"vs1", "vs2"} {
		for _, pool := range []string{"nvol1", "nvol2"} {
			p, ok := dummy.LookupPool(vserver, pool)
			c.Assert(ok, jc.IsTrue, gc.Commentf("pool %s:%s", vserver, pool))
			c.Check(p.Type, gc.Equals, backend.PoolTypeReadWrite)
			c.Check(p.Mounted, jc.IsTrue)
		}
	}
}

func (s *failoverSuite) TestExplicitTarget(c *gc.C) {
	s.ensurePools(c, "nvol1")
	s.setLags(5*time.Minute, 30*time.Second, "nvol1")

	ctx, err := cmdtesting.RunCommand(c, newFailoverCommand(),
		"dev0", "vol-1=nvol1", "--target", "fallback1", "--config", s.configPath)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stderr(ctx), gc.Equals,
		"backend \"dev0\" failed over to \"fallback1\"\n")

	p, ok := dummy.LookupPool("vs1", "nvol1")
	c.Assert(ok, jc.IsTrue)
	c.Check(p.Type, gc.Equals, backend.PoolTypeReadWrite)
	c.Check(p.Mounted, jc.IsTrue)
}

func (s *failoverSuite) TestExplicitTargetUnknown(c *gc.C) {
	s.ensurePools(c, "nvol1")

	_, err := cmdtesting.RunCommand(c, newFailoverCommand(),
		"dev0", "vol-1=nvol1", "--target", "nope", "--config", s.configPath)
	c.Assert(err, gc.ErrorMatches, `failover target "nope" for backend "dev0" not valid`)
}

func (s *failoverSuite) TestNoQualifiedTargets(c *gc.C) {
	_, err := cmdtesting.RunCommand(c, newFailoverCommand(),
		"dev0", "vol-1=nvol1", "--config", s.configPath)
	c.Assert(err, gc.ErrorMatches, `failover target for backend "dev0" not found`)
}

func (s *failoverSuite) TestPartialPromotionReportsError(c *gc.C) {
	s.ensurePools(c, "nvol1", "nvol2")
	s.setLags(16*time.Second, 11*time.Minute, "nvol1", "nvol2")
	dummy.InjectError("BreakMirror", ref("nvol1", "vs1").Key(), errors.New("wedged"))

	ctx, err := cmdtesting.RunCommand(c, newFailoverCommand(),
		"dev0", "vol-1=nvol1", "vol-2=nvol2", "--format", "yaml", "--config", s.configPath)
	c.Assert(err, gc.ErrorMatches, `1 of 2 volumes could not be promoted on "fallback1"`)
	c.Check(cmdtesting.Stdout(ctx), gc.Equals, `
target: fallback1
volumes:
  vol-1: error
  vol-2: failed-over
`[1:])
}
