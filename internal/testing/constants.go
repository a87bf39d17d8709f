// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package testing holds constants and helpers shared by the test
// suites across the repository.
package testing

import "time"

// ShortWait is how long to block waiting for something that should
// not actually happen. The suite really does wait this long before
// moving on.
const ShortWait = 50 * time.Millisecond

// LongWait is used when something should already have happened. The
// wait is only consumed on failure, so it is long enough to rule out
// scheduler noise without slowing a passing run.
const LongWait = 10 * time.Second
