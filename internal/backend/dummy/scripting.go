// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package dummy

import (
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	jujutesting "github.com/juju/testing"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
)

// PoolInfo is a read-only snapshot of a fabric pool, for test
// assertions.
type PoolInfo struct {
	Vserver   string
	Name      string
	Aggregate string
	SizeGiB   int
	Type      string
	Encrypted bool
	Mounted   bool
	Attrs     map[string]interface{}
}

// LookupPool reports the named pool, if present.
func LookupPool(vserver, name string) (PoolInfo, bool) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	p, ok := fabric.pools[endpointKey(vserver, name)]
	if !ok {
		return PoolInfo{}, false
	}
	attrs := make(map[string]interface{}, len(p.attrs))
	for k, v := range p.attrs {
		attrs[k] = v
	}
	return PoolInfo{
		Vserver:   p.vserver,
		Name:      p.name,
		Aggregate: p.aggregate,
		SizeGiB:   p.sizeGiB,
		Type:      p.poolType,
		Encrypted: p.encrypted,
		Mounted:   p.mounted,
		Attrs:     attrs,
	}, true
}

// AddPool seeds a read-write pool on the given vserver.
func AddPool(vserver, name, aggregate string, sizeGiB int) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.pools[endpointKey(vserver, name)] = &pool{
		vserver:   vserver,
		name:      name,
		aggregate: aggregate,
		sizeGiB:   sizeGiB,
		poolType:  backend.PoolTypeReadWrite,
		mounted:   true,
	}
}

// SetPoolAttrs merges provisioning attributes into an existing pool.
// The pool type and encryption attributes update the corresponding
// pool fields; anything else is recorded verbatim.
func SetPoolAttrs(vserver, name string, attrs map[string]interface{}) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	p, ok := fabric.pools[endpointKey(vserver, name)]
	if !ok {
		panic(fmt.Sprintf("dummy: no pool %q on vserver %q", name, vserver))
	}
	if p.attrs == nil {
		p.attrs = make(map[string]interface{})
	}
	for k, v := range attrs {
		switch k {
		case backend.AttrPoolType:
			p.poolType = v.(string)
		case backend.AttrEncrypted:
			p.encrypted = v.(bool)
		default:
			p.attrs[k] = v
		}
	}
}

// SetMirrorStatus forces the relationship status of an existing
// mirror, for driving quiesce and abort paths.
func SetMirrorStatus(ref mirror.Ref, status mirror.RelationshipStatus) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	r, ok := fabric.mirrors[ref.Key()]
	if !ok {
		panic(fmt.Sprintf("dummy: no mirror %s", ref))
	}
	r.status = status
}

// SetLag forces the reported lag time of an existing mirror.
func SetLag(ref mirror.Ref, lag time.Duration) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	r, ok := fabric.mirrors[ref.Key()]
	if !ok {
		panic(fmt.Sprintf("dummy: no mirror %s", ref))
	}
	r.lag = lag
}

// SetBroken replaces the set of globally broken method names.
// SetBroken() with no arguments heals the fabric.
func SetBroken(methods ...string) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.broken = set.NewStrings(methods...)
}

// InjectError scripts a persistent failure for one method against
// one target. The target is a mirror key for mirror operations, or a
// vserver:pool endpoint for pool operations.
func InjectError(method, target string, err error) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.injected[method+" "+target] = err
}

// Stub returns the fabric's call recorder. Calls carry the backend
// name as their first argument.
func Stub() *jujutesting.Stub {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	return fabric.stub
}

// SetClock replaces the clock used to stamp transfer completion.
func SetClock(clk clock.Clock) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.clock = clk
}
