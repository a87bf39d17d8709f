// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package core holds concepts and pure logic pertaining to volmirror's
domain: the identity and lifecycle of mirror relationships, and the
replication bookkeeping attached to volumes living on mirrored pools.

This is a necessarily broad brush; it's most important to be aware
what should *not* go here. In particular:

  - if it talks to a storage controller, or knows how one is addressed
    or authenticated, it belongs under internal/backend
  - if it's in any way concerned with command output or serialization
    it should not be in here

...and more generally, when adding to core:

  - it's fine to import from any subpackage of
    "github.com/volmirror/volmirror/core"
  - but never import from any other subpackage of the module
  - don't introduce mutable global state
*/
package core
