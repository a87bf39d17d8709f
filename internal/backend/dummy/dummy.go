// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// The dummy backend implements an in-memory storage controller for
// testing and demonstration, registered with the backend registry
// under the type "dummy".
//
// All dummy clients share a single fabric, so a mirror created
// through a source backend's client is visible through a destination
// backend's client, as it would be between two real controllers
// peered for replication. Reset returns the fabric to a blank slate.
//
// Two settings keys are interpreted. "pools" seeds pools on the
// client's vserver from comma-separated name@aggregate entries. The
// "broken" setting holds a space-separated list of ControlClient
// method names; the named methods fail until the fabric is reset.
package dummy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/naturalsort"
	jujutesting "github.com/juju/testing"

	"github.com/volmirror/volmirror/core/mirror"
	"github.com/volmirror/volmirror/internal/backend"
)

var logger = loggo.GetLogger("volmirror.backend.dummy")

const defaultPoolSizeGiB = 1

func init() {
	backend.RegisterClient("dummy", NewClient)
}

type pool struct {
	vserver   string
	name      string
	aggregate string
	sizeGiB   int
	poolType  string
	encrypted bool
	mounted   bool
	attrs     map[string]interface{}
}

type relationship struct {
	ref      mirror.Ref
	state    mirror.State
	status   mirror.RelationshipStatus
	lag      time.Duration
	lastEnd  time.Time
	schedule string
}

func (r *relationship) info() mirror.Info {
	return mirror.Info{
		Ref:             r.ref,
		State:           r.state,
		Status:          r.status,
		LagTime:         r.lag,
		LastTransferEnd: r.lastEnd,
		Schedule:        r.schedule,
	}
}

// fabricState is the controller state shared by every dummy client.
type fabricState struct {
	mu       sync.Mutex
	stub     *jujutesting.Stub
	clock    clock.Clock
	pools    map[string]*pool
	mirrors  map[string]*relationship
	sources  set.Strings
	broken   set.Strings
	injected map[string]error
}

var fabric = newFabric()

func newFabric() *fabricState {
	return &fabricState{
		stub:     &jujutesting.Stub{},
		clock:    clock.WallClock,
		pools:    make(map[string]*pool),
		mirrors:  make(map[string]*relationship),
		sources:  set.NewStrings(),
		broken:   set.NewStrings(),
		injected: make(map[string]error),
	}
}

// Reset discards all pools, mirrors, recorded calls and scripted
// failures.
func Reset() {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	logger.Infof("reset dummy fabric")
	fresh := newFabric()
	fabric.stub = fresh.stub
	fabric.clock = fresh.clock
	fabric.pools = fresh.pools
	fabric.mirrors = fresh.mirrors
	fabric.sources = fresh.sources
	fabric.broken = fresh.broken
	fabric.injected = fresh.injected
}

// errFor returns the scripted failure for a method invocation, if any.
func (f *fabricState) errFor(method, target string) error {
	if f.broken.Contains(method) {
		return errors.Errorf("dummy backend: %s is broken", method)
	}
	if err, ok := f.injected[method+" "+target]; ok {
		return err
	}
	return nil
}

func (f *fabricState) pool(vserver, name string) (*pool, error) {
	p, ok := f.pools[endpointKey(vserver, name)]
	if !ok {
		return nil, errors.NotFoundf("pool %q on vserver %q", name, vserver)
	}
	return p, nil
}

func (f *fabricState) relationship(ref mirror.Ref) (*relationship, error) {
	r, ok := f.mirrors[ref.Key()]
	if !ok {
		return nil, errors.NotFoundf("mirror %s", ref)
	}
	return r, nil
}

func endpointKey(vserver, name string) string {
	return mirror.Endpoint{Vserver: vserver, Pool: name}.String()
}

// Client is an in-memory ControlClient operating on the shared
// fabric. Pool operations resolve against the client's vserver.
type Client struct {
	name    string
	vserver string
}

// NewClient is the registered factory for "dummy" backends.
func NewClient(ctx context.Context, cfg backend.Config) (backend.ControlClient, error) {
	settings := cfg.Settings()
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	if b := settings["broken"]; b != "" {
		fabric.broken = fabric.broken.Union(set.NewStrings(strings.Fields(b)...))
	}
	if p := settings["pools"]; p != "" {
		seedPools(cfg.Vserver(), p)
	}
	return &Client{name: cfg.Name(), vserver: cfg.Vserver()}, nil
}

// seedPools creates any missing pools named in the "pools" setting.
// Entries already present are left untouched, so reopening a client
// does not clobber state.
func seedPools(vserver, spec string) {
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, aggregate := entry, "aggr1"
		if i := strings.IndexRune(entry, '@'); i >= 0 {
			name, aggregate = entry[:i], entry[i+1:]
		}
		key := endpointKey(vserver, name)
		if _, ok := fabric.pools[key]; ok {
			continue
		}
		fabric.pools[key] = &pool{
			vserver:   vserver,
			name:      name,
			aggregate: aggregate,
			sizeGiB:   defaultPoolSizeGiB,
			poolType:  backend.PoolTypeReadWrite,
			mounted:   true,
		}
	}
}

// GetMirrors implements backend.ControlClient.
func (c *Client) GetMirrors(ctx context.Context, q mirror.Query) ([]mirror.Info, error) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("GetMirrors", c.name, q)
	if err := fabric.errFor("GetMirrors", ""); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fabric.mirrors))
	for key := range fabric.mirrors {
		keys = append(keys, key)
	}
	naturalsort.Sort(keys)
	var infos []mirror.Info
	for _, key := range keys {
		if info := fabric.mirrors[key].info(); q.Matches(info) {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// CreateMirror implements backend.ControlClient.
func (c *Client) CreateMirror(ctx context.Context, ref mirror.Ref, schedule string) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("CreateMirror", c.name, ref, schedule)
	if err := fabric.errFor("CreateMirror", ref.Key()); err != nil {
		return err
	}
	if _, ok := fabric.mirrors[ref.Key()]; ok {
		return errors.AlreadyExistsf("mirror %s", ref)
	}
	if _, err := fabric.pool(ref.Source.Vserver, ref.Source.Pool); err != nil {
		return errors.Trace(err)
	}
	dst, err := fabric.pool(ref.Destination.Vserver, ref.Destination.Pool)
	if err != nil {
		return errors.Trace(err)
	}
	if dst.poolType != backend.PoolTypeReplicationTarget {
		return errors.Errorf("pool %q is not a replication target", ref.Destination.Pool)
	}
	logger.Debugf("created mirror %s", ref)
	fabric.mirrors[ref.Key()] = &relationship{
		ref:      ref,
		state:    mirror.StateUninitialized,
		status:   mirror.StatusIdle,
		schedule: schedule,
	}
	fabric.sources.Add(ref.Key())
	return nil
}

// InitializeMirror implements backend.ControlClient.
func (c *Client) InitializeMirror(ctx context.Context, ref mirror.Ref) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("InitializeMirror", c.name, ref)
	if err := fabric.errFor("InitializeMirror", ref.Key()); err != nil {
		return err
	}
	r, err := fabric.relationship(ref)
	if err != nil {
		return errors.Trace(err)
	}
	if r.state != mirror.StateUninitialized {
		return errors.Errorf("mirror %s already initialized", ref)
	}
	r.state = mirror.StateSnapmirrored
	r.status = mirror.StatusIdle
	r.lastEnd = fabric.clock.Now()
	r.lag = 0
	return nil
}

// QuiesceMirror implements backend.ControlClient.
func (c *Client) QuiesceMirror(ctx context.Context, ref mirror.Ref) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("QuiesceMirror", c.name, ref)
	if err := fabric.errFor("QuiesceMirror", ref.Key()); err != nil {
		return err
	}
	r, err := fabric.relationship(ref)
	if err != nil {
		return errors.Trace(err)
	}
	if r.status == mirror.StatusTransferring {
		r.status = mirror.StatusQuiescing
	} else {
		r.status = mirror.StatusQuiesced
	}
	return nil
}

// AbortMirror implements backend.ControlClient.
func (c *Client) AbortMirror(ctx context.Context, ref mirror.Ref, clearCheckpoint bool) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("AbortMirror", c.name, ref, clearCheckpoint)
	if err := fabric.errFor("AbortMirror", ref.Key()); err != nil {
		return err
	}
	r, err := fabric.relationship(ref)
	if err != nil {
		return errors.Trace(err)
	}
	switch r.status {
	case mirror.StatusQuiescing:
		r.status = mirror.StatusQuiesced
	case mirror.StatusTransferring:
		r.status = mirror.StatusIdle
	}
	return nil
}

// BreakMirror implements backend.ControlClient.
func (c *Client) BreakMirror(ctx context.Context, ref mirror.Ref) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("BreakMirror", c.name, ref)
	if err := fabric.errFor("BreakMirror", ref.Key()); err != nil {
		return err
	}
	r, err := fabric.relationship(ref)
	if err != nil {
		return errors.Trace(err)
	}
	if r.status == mirror.StatusTransferring {
		return errors.Errorf("mirror %s has a transfer in progress", ref)
	}
	if r.state != mirror.StateSnapmirrored {
		return errors.Errorf("mirror %s cannot be broken from state %q", ref, r.state)
	}
	r.state = mirror.StateBrokenOff
	r.status = mirror.StatusIdle
	if p, err := fabric.pool(ref.Destination.Vserver, ref.Destination.Pool); err == nil {
		p.poolType = backend.PoolTypeReadWrite
	}
	return nil
}

// ResyncMirror implements backend.ControlClient.
func (c *Client) ResyncMirror(ctx context.Context, ref mirror.Ref) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("ResyncMirror", c.name, ref)
	if err := fabric.errFor("ResyncMirror", ref.Key()); err != nil {
		return err
	}
	r, err := fabric.relationship(ref)
	if err != nil {
		return errors.Trace(err)
	}
	if r.state != mirror.StateBrokenOff {
		return errors.Errorf("mirror %s cannot be resynced from state %q", ref, r.state)
	}
	r.state = mirror.StateSnapmirrored
	r.status = mirror.StatusIdle
	r.lastEnd = fabric.clock.Now()
	r.lag = 0
	if p, err := fabric.pool(ref.Destination.Vserver, ref.Destination.Pool); err == nil {
		p.poolType = backend.PoolTypeReplicationTarget
	}
	return nil
}

// ResumeMirror implements backend.ControlClient.
func (c *Client) ResumeMirror(ctx context.Context, ref mirror.Ref) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("ResumeMirror", c.name, ref)
	if err := fabric.errFor("ResumeMirror", ref.Key()); err != nil {
		return err
	}
	r, err := fabric.relationship(ref)
	if err != nil {
		return errors.Trace(err)
	}
	if r.status == mirror.StatusQuiesced || r.status == mirror.StatusQuiescing {
		r.status = mirror.StatusIdle
	}
	return nil
}

// UpdateMirror implements backend.ControlClient.
func (c *Client) UpdateMirror(ctx context.Context, ref mirror.Ref) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("UpdateMirror", c.name, ref)
	if err := fabric.errFor("UpdateMirror", ref.Key()); err != nil {
		return err
	}
	r, err := fabric.relationship(ref)
	if err != nil {
		return errors.Trace(err)
	}
	if r.state != mirror.StateSnapmirrored {
		return errors.Errorf("mirror %s cannot transfer in state %q", ref, r.state)
	}
	r.lastEnd = fabric.clock.Now()
	r.lag = 0
	return nil
}

// DeleteMirror implements backend.ControlClient.
func (c *Client) DeleteMirror(ctx context.Context, ref mirror.Ref) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("DeleteMirror", c.name, ref)
	if err := fabric.errFor("DeleteMirror", ref.Key()); err != nil {
		return err
	}
	if _, ok := fabric.mirrors[ref.Key()]; !ok {
		return errors.NotFoundf("mirror %s", ref)
	}
	delete(fabric.mirrors, ref.Key())
	return nil
}

// ReleaseMirror implements backend.ControlClient.
func (c *Client) ReleaseMirror(ctx context.Context, ref mirror.Ref) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("ReleaseMirror", c.name, ref)
	if err := fabric.errFor("ReleaseMirror", ref.Key()); err != nil {
		return err
	}
	if !fabric.sources.Contains(ref.Key()) {
		return errors.NotFoundf("source entry for mirror %s", ref)
	}
	fabric.sources.Remove(ref.Key())
	return nil
}

// MountPool implements backend.ControlClient.
func (c *Client) MountPool(ctx context.Context, name string) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("MountPool", c.name, name)
	if err := fabric.errFor("MountPool", endpointKey(c.vserver, name)); err != nil {
		return err
	}
	p, err := fabric.pool(c.vserver, name)
	if err != nil {
		return errors.Trace(err)
	}
	p.mounted = true
	return nil
}

// ProvisioningOptions implements backend.ControlClient.
func (c *Client) ProvisioningOptions(ctx context.Context, name string) (map[string]interface{}, error) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("ProvisioningOptions", c.name, name)
	if err := fabric.errFor("ProvisioningOptions", endpointKey(c.vserver, name)); err != nil {
		return nil, err
	}
	p, err := fabric.pool(c.vserver, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	opts := map[string]interface{}{
		backend.AttrSize:      p.sizeGiB,
		backend.AttrAggregate: p.aggregate,
		backend.AttrPoolType:  p.poolType,
		backend.AttrEncrypted: p.encrypted,
	}
	for k, v := range p.attrs {
		opts[k] = v
	}
	return opts, nil
}

// IsEncrypted implements backend.ControlClient.
func (c *Client) IsEncrypted(ctx context.Context, name string) (bool, error) {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("IsEncrypted", c.name, name)
	if err := fabric.errFor("IsEncrypted", endpointKey(c.vserver, name)); err != nil {
		return false, err
	}
	p, err := fabric.pool(c.vserver, name)
	if err != nil {
		return false, errors.Trace(err)
	}
	return p.encrypted, nil
}

// CreatePool implements backend.ControlClient.
func (c *Client) CreatePool(ctx context.Context, name, aggregate string, sizeGiB int, attrs map[string]interface{}) error {
	fabric.mu.Lock()
	defer fabric.mu.Unlock()
	fabric.stub.AddCall("CreatePool", c.name, name, aggregate, sizeGiB, attrs)
	if err := fabric.errFor("CreatePool", endpointKey(c.vserver, name)); err != nil {
		return err
	}
	key := endpointKey(c.vserver, name)
	if _, ok := fabric.pools[key]; ok {
		return errors.AlreadyExistsf("pool %q on vserver %q", name, c.vserver)
	}
	p := &pool{
		vserver:   c.vserver,
		name:      name,
		aggregate: aggregate,
		sizeGiB:   sizeGiB,
		poolType:  backend.PoolTypeReadWrite,
		attrs:     make(map[string]interface{}),
	}
	for k, v := range attrs {
		switch k {
		case backend.AttrPoolType:
			if t, ok := v.(string); ok {
				p.poolType = t
			}
		case backend.AttrEncrypted:
			if e, ok := v.(bool); ok {
				p.encrypted = e
			}
		default:
			p.attrs[k] = v
		}
	}
	fabric.pools[key] = p
	return nil
}
