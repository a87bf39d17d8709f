// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication_test

import (
	stderrors "errors"

	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/volmirror/volmirror/internal/replication"
)

type ErrorsSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&ErrorsSuite{})

func (*ErrorsSuite) TestOperationErrorMessage(c *gc.C) {
	err := replication.NewOperationError("dev0", "break mirror", stderrors.New("relationship busy"))
	c.Check(err, gc.ErrorMatches, `cannot break mirror on backend "dev0": relationship busy`)

	opErr, ok := err.(*replication.OperationError)
	c.Assert(ok, jc.IsTrue)
	c.Check(opErr.Backend, gc.Equals, "dev0")
	c.Check(opErr.Op, gc.Equals, "break mirror")
}

var isOperationErrorTests = []struct {
	err error
	is  bool
}{
	{err: nil, is: false},
	{err: stderrors.New("foo"), is: false},
	{err: errors.NotFoundf("mirror"), is: false},
	{err: replication.NewOperationError("dev0", "update mirror", stderrors.New("busy")), is: true},
	{err: errors.Trace(replication.NewOperationError("dev0", "update mirror", stderrors.New("busy"))), is: true},
	{err: errors.Annotate(replication.NewOperationError("dev0", "update mirror", stderrors.New("busy")), "outer"), is: true},
}

func (*ErrorsSuite) TestIsOperationError(c *gc.C) {
	for i, t := range isOperationErrorTests {
		c.Logf("test %d: %v", i, t.err)
		c.Check(replication.IsOperationError(t.err), gc.Equals, t.is)
	}
}

func (*ErrorsSuite) TestWrappingMasksTheReason(c *gc.C) {
	// A not-found reason must not leak through: cleanup paths decide
	// what to swallow before wrapping, never after.
	err := replication.NewOperationError("dev0", "delete mirror", errors.NotFoundf("mirror"))
	c.Check(errors.IsNotFound(err), jc.IsFalse)
	c.Check(replication.IsOperationError(err), jc.IsTrue)
}
