// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication_test

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
	"github.com/volmirror/volmirror/internal/replication"
)

type CoordinatorSuite struct {
	jujutesting.IsolationSuite

	src *mockClient
	t1  *mockClient
	t2  *mockClient

	backendCfg backend.Config
	t1cfg      backend.Config
	t2cfg      backend.Config
}

var _ = gc.Suite(&CoordinatorSuite{})

func (s *CoordinatorSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.src = newMockClient()
	s.t1 = newMockClient()
	s.t2 = newMockClient()
	s.backendCfg = makeConfig(c, "dev0", "vs0", map[string]interface{}{
		"replication-targets": []interface{}{"fallback1", "fallback2"},
		"quiesce-timeout":     "10ms",
	})
	s.t1cfg = makeConfig(c, "fallback1", "vs1", nil)
	s.t2cfg = makeConfig(c, "fallback2", "vs2", nil)
}

func (s *CoordinatorSuite) clients() map[string]backend.ControlClient {
	return map[string]backend.ControlClient{
		"dev0":      s.src,
		"fallback1": s.t1,
		"fallback2": s.t2,
	}
}

func (s *CoordinatorSuite) newCoordinator(c *gc.C, newClient backend.NewControlClientFunc) *replication.Coordinator {
	if newClient == nil {
		newClient = factoryFor(s.clients())
	}
	coord, err := replication.NewCoordinator(replication.CoordinatorConfig{
		Backend:         s.backendCfg,
		Provider:        backend.NewMemProvider(s.t1cfg, s.t2cfg),
		NewClient:       newClient,
		Clock:           clock.WallClock,
		QuiesceInterval: time.Millisecond,
	})
	c.Assert(err, jc.ErrorIsNil)
	return coord
}

func (s *CoordinatorSuite) seedPools(pools ...string) {
	for _, pool := range pools {
		opts := map[string]interface{}{
			backend.AttrSize:      1,
			backend.AttrAggregate: "aggr1",
		}
		s.t1.addPool(pool, opts)
		s.t2.addPool(pool, opts)
	}
}

func (s *CoordinatorSuite) seedMirrors(pools ...string) {
	for _, pool := range pools {
		s.t1.addMirror(healthyMirror(testRef("vs0", pool, "vs1", pool)))
		s.t2.addMirror(healthyMirror(testRef("vs0", pool, "vs2", pool)))
	}
}

func (s *CoordinatorSuite) TestNewCoordinatorValidates(c *gc.C) {
	_, err := replication.NewCoordinator(replication.CoordinatorConfig{
		Backend:   s.backendCfg,
		NewClient: factoryFor(s.clients()),
		Clock:     clock.WallClock,
	})
	c.Assert(err, gc.ErrorMatches, "nil Provider not valid")
}

func (s *CoordinatorSuite) TestEnsureAllFansOut(c *gc.C) {
	s.seedPools("nvol1", "nvol2")
	coord := s.newCoordinator(c, nil)

	err := coord.EnsureAll(context.Background(), []string{"nvol1", "nvol2"})
	c.Assert(err, jc.ErrorIsNil)

	for _, pool := range []string{"nvol1", "nvol2"} {
		info, ok := s.t1.mirrorState(testRef("vs0", pool, "vs1", pool))
		c.Assert(ok, jc.IsTrue)
		c.Check(info.State, gc.Equals, mirror.StateSnapmirrored)

		info, ok = s.t2.mirrorState(testRef("vs0", pool, "vs2", pool))
		c.Assert(ok, jc.IsTrue)
		c.Check(info.State, gc.Equals, mirror.StateSnapmirrored)
	}
	s.src.CheckCallNames(c)
}

func (s *CoordinatorSuite) TestEnsureAllReturnsFirstFailure(c *gc.C) {
	s.seedPools("nvol1", "nvol2")
	s.t2.createFunc = func(ref mirror.Ref) error {
		if ref.Destination.Pool == "nvol2" {
			return errors.New("no space on aggregate")
		}
		return nil
	}
	coord := s.newCoordinator(c, nil)

	err := coord.EnsureAll(context.Background(), []string{"nvol1", "nvol2"})
	c.Assert(err, jc.Satisfies, replication.IsOperationError)
	c.Assert(err, gc.ErrorMatches, `cannot create mirror on backend "fallback2": no space on aggregate`)
}

func (s *CoordinatorSuite) TestEnsureAllUnresolvableTarget(c *gc.C) {
	coord, err := replication.NewCoordinator(replication.CoordinatorConfig{
		Backend:   s.backendCfg,
		Provider:  backend.NewMemProvider(s.t1cfg),
		NewClient: factoryFor(s.clients()),
		Clock:     clock.WallClock,
	})
	c.Assert(err, jc.ErrorIsNil)
	s.seedPools("nvol1")

	err = coord.EnsureAll(context.Background(), []string{"nvol1"})
	c.Assert(err, gc.ErrorMatches, `resolving replication target "fallback2": backend "fallback2" not found`)
}

func (s *CoordinatorSuite) TestEnsureAllNoTargets(c *gc.C) {
	s.backendCfg = makeConfig(c, "lonely", "vs0", nil)
	coord := s.newCoordinator(c, factoryFor(nil))

	err := coord.EnsureAll(context.Background(), []string{"nvol1"})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *CoordinatorSuite) TestClientsCachedAcrossBatches(c *gc.C) {
	s.seedPools("nvol1")
	opened := make(map[string]int)
	clients := s.clients()
	coord := s.newCoordinator(c, func(ctx context.Context, cfg backend.Config) (backend.ControlClient, error) {
		opened[cfg.Name()]++
		return clients[cfg.Name()], nil
	})

	c.Assert(coord.EnsureAll(context.Background(), []string{"nvol1"}), jc.ErrorIsNil)
	c.Assert(coord.EnsureAll(context.Background(), []string{"nvol1"}), jc.ErrorIsNil)

	c.Check(opened, jc.DeepEquals, map[string]int{
		"dev0": 1, "fallback1": 1, "fallback2": 1,
	})
}

func (s *CoordinatorSuite) TestBreakAllBreaksEverywhere(c *gc.C) {
	s.seedMirrors("nvol1")
	coord := s.newCoordinator(c, nil)

	failed := coord.BreakAll(context.Background(), []string{"nvol1"}, "fallback1")
	c.Check(failed, gc.HasLen, 0)

	info, _ := s.t1.mirrorState(testRef("vs0", "nvol1", "vs1", "nvol1"))
	c.Check(info.State, gc.Equals, mirror.StateBrokenOff)
	info, _ = s.t2.mirrorState(testRef("vs0", "nvol1", "vs2", "nvol1"))
	c.Check(info.State, gc.Equals, mirror.StateBrokenOff)
}

func (s *CoordinatorSuite) TestBreakAllReportsChosenFailuresOnly(c *gc.C) {
	s.seedMirrors("nvol1", "nvol2", "nvol10")
	s.t1.breakFunc = func(ref mirror.Ref) error {
		if ref.Destination.Pool == "nvol1" {
			return nil
		}
		return errors.New("relationship busy")
	}
	s.t2.breakFunc = func(ref mirror.Ref) error {
		return errors.New("other site is down")
	}
	coord := s.newCoordinator(c, nil)

	failed := coord.BreakAll(context.Background(), []string{"nvol1", "nvol2", "nvol10"}, "fallback1")
	c.Check(failed, jc.DeepEquals, []string{"nvol2", "nvol10"})
}

func (s *CoordinatorSuite) TestBreakAllChosenUnreachable(c *gc.C) {
	s.seedMirrors("nvol1", "nvol2")
	clients := s.clients()
	delete(clients, "fallback1")
	coord := s.newCoordinator(c, factoryFor(clients))

	failed := coord.BreakAll(context.Background(), []string{"nvol1", "nvol2"}, "fallback1")
	c.Check(failed, jc.DeepEquals, []string{"nvol1", "nvol2"})

	// The reachable target was still broken off.
	info, _ := s.t2.mirrorState(testRef("vs0", "nvol1", "vs2", "nvol1"))
	c.Check(info.State, gc.Equals, mirror.StateBrokenOff)
}

func (s *CoordinatorSuite) TestUpdateAllBestEffort(c *gc.C) {
	s.seedMirrors("nvol1")
	s.t1.updateFunc = func(ref mirror.Ref) error {
		return errors.New("transfer already running")
	}
	coord := s.newCoordinator(c, nil)

	coord.UpdateAll(context.Background(), []string{"nvol1"})

	s.t1.CheckCallNames(c, "UpdateMirror")
	s.t2.CheckCallNames(c, "UpdateMirror")
}

func (s *CoordinatorSuite) TestUpdateAllUnreachableTargetSkipped(c *gc.C) {
	s.seedMirrors("nvol1")
	clients := s.clients()
	delete(clients, "fallback2")
	coord := s.newCoordinator(c, factoryFor(clients))

	coord.UpdateAll(context.Background(), []string{"nvol1"})

	s.t1.CheckCallNames(c, "UpdateMirror")
	s.t2.CheckCallNames(c)
}

func (s *CoordinatorSuite) TestListMirrors(c *gc.C) {
	s.seedMirrors("nvol1", "nvol2")
	coord := s.newCoordinator(c, nil)

	infos, err := coord.ListMirrors(context.Background(), "fallback1", nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(infos, gc.HasLen, 2)

	infos, err = coord.ListMirrors(context.Background(), "fallback1", []string{"nvol2"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(infos, gc.HasLen, 1)
	c.Check(infos[0].Destination.Pool, gc.Equals, "nvol2")
}
