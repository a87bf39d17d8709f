// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror_test

import (
	"time"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/volmirror/volmirror/core/mirror"
)

type mirrorSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&mirrorSuite{})

func (s *mirrorSuite) TestRefKey(c *gc.C) {
	ref := mirror.Ref{
		Source:      mirror.Endpoint{Vserver: "vs0", Pool: "nvol1"},
		Destination: mirror.Endpoint{Vserver: "vs1", Pool: "nvol1"},
	}
	c.Check(ref.Key(), gc.Equals, "vs0:nvol1>vs1:nvol1")
	c.Check(ref.String(), gc.Equals, "vs0:nvol1 -> vs1:nvol1")
}

func (s *mirrorSuite) TestQueryMatchesWildcards(c *gc.C) {
	info := mirror.Info{
		Ref: mirror.Ref{
			Source:      mirror.Endpoint{Vserver: "vs0", Pool: "nvol1"},
			Destination: mirror.Endpoint{Vserver: "vs1", Pool: "nvol1"},
		},
	}
	c.Check(mirror.Query{}.Matches(info), jc.IsTrue)
	c.Check(mirror.Query{
		Source: mirror.Endpoint{Vserver: "vs0"},
	}.Matches(info), jc.IsTrue)
	c.Check(mirror.Query{
		Destination: mirror.Endpoint{Pool: "nvol1"},
	}.Matches(info), jc.IsTrue)
}

func (s *mirrorSuite) TestQueryMatchesRejects(c *gc.C) {
	info := mirror.Info{
		Ref: mirror.Ref{
			Source:      mirror.Endpoint{Vserver: "vs0", Pool: "nvol1"},
			Destination: mirror.Endpoint{Vserver: "vs1", Pool: "nvol1"},
		},
	}
	c.Check(mirror.Query{
		Source: mirror.Endpoint{Vserver: "vs9"},
	}.Matches(info), jc.IsFalse)
	c.Check(mirror.Query{
		Destination: mirror.Endpoint{Pool: "other"},
	}.Matches(info), jc.IsFalse)
}

func (s *mirrorSuite) TestHealthy(c *gc.C) {
	info := mirror.Info{State: mirror.StateSnapmirrored, LagTime: 16 * time.Second}
	c.Check(info.Healthy(), jc.IsTrue)
	for _, state := range []mirror.State{mirror.StateUninitialized, mirror.StateBrokenOff} {
		info.State = state
		c.Check(info.Healthy(), jc.IsFalse)
	}
}

func (s *mirrorSuite) TestEndpointIsZero(c *gc.C) {
	c.Check(mirror.Endpoint{}.IsZero(), jc.IsTrue)
	c.Check(mirror.Endpoint{Pool: "nvol1"}.IsZero(), jc.IsFalse)
}
