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

type OrchestratorSuite struct {
	jujutesting.IsolationSuite

	t1 *mockClient
	t2 *mockClient

	backendCfg backend.Config
	t1cfg      backend.Config
	t2cfg      backend.Config

	volumes []mirror.VolumeRecord
}

var _ = gc.Suite(&OrchestratorSuite{})

func (s *OrchestratorSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.t1 = newMockClient()
	s.t2 = newMockClient()
	s.backendCfg = makeConfig(c, "dev0", "vs0", map[string]interface{}{
		"replication-targets": []interface{}{"fallback1", "fallback2"},
		"quiesce-timeout":     "10ms",
	})
	s.t1cfg = makeConfig(c, "fallback1", "vs1", nil)
	s.t2cfg = makeConfig(c, "fallback2", "vs2", nil)
	s.volumes = []mirror.VolumeRecord{
		{ID: "vol-1", Pool: "nvol1", ReplicationStatus: mirror.ReplicationEnabled},
		{ID: "vol-2", Pool: "nvol2", ReplicationStatus: mirror.ReplicationEnabled},
		{ID: "vol-3", Pool: "nvol3", ReplicationStatus: mirror.ReplicationEnabled},
		{ID: "vol-4", Pool: "nvol3", ReplicationStatus: mirror.ReplicationEnabled},
	}

	// fallback1 carries much fresher copies than fallback2.
	lags := map[string]time.Duration{"nvol1": 16 * time.Second, "nvol2": 5 * time.Second, "nvol3": 9 * time.Second}
	for pool, lag := range lags {
		addLagged(s.t1, "vs1", pool, lag)
		addLagged(s.t2, "vs2", pool, lag+700*time.Second)
	}
}

func (s *OrchestratorSuite) newOrchestrator(c *gc.C) *replication.Orchestrator {
	factory := factoryFor(map[string]backend.ControlClient{
		"dev0":      newMockClient(),
		"fallback1": s.t1,
		"fallback2": s.t2,
	})
	provider := backend.NewMemProvider(s.t1cfg, s.t2cfg)
	coordinator, err := replication.NewCoordinator(replication.CoordinatorConfig{
		Backend:         s.backendCfg,
		Provider:        provider,
		NewClient:       factory,
		Clock:           clock.WallClock,
		QuiesceInterval: time.Millisecond,
	})
	c.Assert(err, jc.ErrorIsNil)
	selector, err := replication.NewTargetSelector(replication.SelectorConfig{
		Backend:   s.backendCfg,
		Provider:  provider,
		NewClient: factory,
	})
	c.Assert(err, jc.ErrorIsNil)
	orchestrator, err := replication.NewOrchestrator(replication.OrchestratorConfig{
		Backend:     s.backendCfg,
		Coordinator: coordinator,
		Selector:    selector,
	})
	c.Assert(err, jc.ErrorIsNil)
	return orchestrator
}

func (s *OrchestratorSuite) callCount(client *mockClient, name string) int {
	n := 0
	for _, call := range client.Calls() {
		if call.FuncName == name {
			n++
		}
	}
	return n
}

func (s *OrchestratorSuite) TestValidate(c *gc.C) {
	_, err := replication.NewOrchestrator(replication.OrchestratorConfig{
		Backend: s.backendCfg,
	})
	c.Assert(err, gc.ErrorMatches, "nil Coordinator not valid")
}

func (s *OrchestratorSuite) TestFailsOverToFreshestTarget(c *gc.C) {
	orchestrator := s.newOrchestrator(c)

	target, updates, err := orchestrator.CompleteFailover(context.Background(), s.volumes, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(target, gc.Equals, "fallback1")
	c.Check(updates, jc.DeepEquals, []mirror.VolumeStatusUpdate{
		{VolumeID: "vol-1", ReplicationStatus: mirror.ReplicationFailedOver},
		{VolumeID: "vol-2", ReplicationStatus: mirror.ReplicationFailedOver},
		{VolumeID: "vol-3", ReplicationStatus: mirror.ReplicationFailedOver},
		{VolumeID: "vol-4", ReplicationStatus: mirror.ReplicationFailedOver},
	})

	// A last incremental transfer ran, and the chosen target's pools
	// were broken off and mounted.
	c.Check(s.callCount(s.t1, "UpdateMirror"), gc.Equals, 3)
	c.Check(s.callCount(s.t1, "MountPool"), gc.Equals, 3)
	for _, pool := range []string{"nvol1", "nvol2", "nvol3"} {
		info, ok := s.t1.mirrorState(testRef("vs0", pool, "vs1", pool))
		c.Assert(ok, jc.IsTrue)
		c.Check(info.State, gc.Equals, mirror.StateBrokenOff)

		// Relationships elsewhere are broken too.
		info, ok = s.t2.mirrorState(testRef("vs0", pool, "vs2", pool))
		c.Assert(ok, jc.IsTrue)
		c.Check(info.State, gc.Equals, mirror.StateBrokenOff)
	}
}

func (s *OrchestratorSuite) TestBreakFailureMarksVolumesError(c *gc.C) {
	s.t1.breakFunc = func(ref mirror.Ref) error {
		if ref.Destination.Pool == "nvol3" {
			return errors.New("relationship wedged")
		}
		return nil
	}
	orchestrator := s.newOrchestrator(c)

	target, updates, err := orchestrator.CompleteFailover(context.Background(), s.volumes, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(target, gc.Equals, "fallback1")
	c.Check(updates, jc.DeepEquals, []mirror.VolumeStatusUpdate{
		{VolumeID: "vol-1", ReplicationStatus: mirror.ReplicationFailedOver},
		{VolumeID: "vol-2", ReplicationStatus: mirror.ReplicationFailedOver},
		{VolumeID: "vol-3", ReplicationStatus: mirror.ReplicationError},
		{VolumeID: "vol-4", ReplicationStatus: mirror.ReplicationError},
	})
}

func (s *OrchestratorSuite) TestOtherTargetBreakFailuresIgnored(c *gc.C) {
	s.t2.breakFunc = func(ref mirror.Ref) error {
		return errors.New("remote site is down")
	}
	orchestrator := s.newOrchestrator(c)

	_, updates, err := orchestrator.CompleteFailover(context.Background(), s.volumes, "")
	c.Assert(err, jc.ErrorIsNil)
	for _, update := range updates {
		c.Check(update.ReplicationStatus, gc.Equals, mirror.ReplicationFailedOver)
	}
}

func (s *OrchestratorSuite) TestExplicitTarget(c *gc.C) {
	orchestrator := s.newOrchestrator(c)

	target, updates, err := orchestrator.CompleteFailover(context.Background(), s.volumes, "fallback2")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(target, gc.Equals, "fallback2")
	c.Check(updates, gc.HasLen, 4)

	info, ok := s.t2.mirrorState(testRef("vs0", "nvol1", "vs2", "nvol1"))
	c.Assert(ok, jc.IsTrue)
	c.Check(info.State, gc.Equals, mirror.StateBrokenOff)
}

func (s *OrchestratorSuite) TestExplicitTargetUnknown(c *gc.C) {
	orchestrator := s.newOrchestrator(c)

	_, _, err := orchestrator.CompleteFailover(context.Background(), s.volumes, "offsite9")
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches, `failover target "offsite9" for backend "dev0" not valid`)
	s.t1.CheckCallNames(c)
	s.t2.CheckCallNames(c)
}

func (s *OrchestratorSuite) TestSelectorFailureMutatesNothing(c *gc.C) {
	s.t1.SetErrors(errors.New("candidate dark"))
	s.t2.SetErrors(errors.New("candidate dark"))
	orchestrator := s.newOrchestrator(c)

	_, _, err := orchestrator.CompleteFailover(context.Background(), s.volumes, "")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
	for _, client := range []*mockClient{s.t1, s.t2} {
		for _, call := range client.Calls() {
			c.Check(call.FuncName, gc.Equals, "GetMirrors")
		}
	}
}

func (s *OrchestratorSuite) TestUpdateFailuresDoNotGate(c *gc.C) {
	boom := func(ref mirror.Ref) error { return errors.New("source unreachable") }
	s.t1.updateFunc = boom
	s.t2.updateFunc = boom
	orchestrator := s.newOrchestrator(c)

	_, updates, err := orchestrator.CompleteFailover(context.Background(), s.volumes, "")
	c.Assert(err, jc.ErrorIsNil)
	for _, update := range updates {
		c.Check(update.ReplicationStatus, gc.Equals, mirror.ReplicationFailedOver)
	}
}

func (s *OrchestratorSuite) TestNoVolumes(c *gc.C) {
	orchestrator := s.newOrchestrator(c)

	_, _, err := orchestrator.CompleteFailover(context.Background(), nil, "")
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches, "failover without volumes not valid")
}

func (s *OrchestratorSuite) TestIncompleteVolumeRecord(c *gc.C) {
	orchestrator := s.newOrchestrator(c)

	_, _, err := orchestrator.CompleteFailover(context.Background(), []mirror.VolumeRecord{
		{ID: "", Pool: "nvol1"},
	}, "")
	c.Assert(err, gc.ErrorMatches, `volume record "" in pool "nvol1" not valid`)
}
