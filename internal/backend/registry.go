// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/naturalsort"
)

// clientRegistry maps client types to their factories. Registration
// happens from init functions, so no locking is needed.
type clientRegistry struct {
	factories map[string]NewControlClientFunc
}

var globalRegistry = &clientRegistry{
	factories: map[string]NewControlClientFunc{},
}

func (r *clientRegistry) register(clientType string, factory NewControlClientFunc) error {
	if _, ok := r.factories[clientType]; ok {
		return errors.Errorf("duplicate client type %q", clientType)
	}
	r.factories[clientType] = factory
	return nil
}

func (r *clientRegistry) newClient(ctx context.Context, cfg Config) (ControlClient, error) {
	factory, ok := r.factories[cfg.Type()]
	if !ok {
		return nil, errors.NewNotFound(
			nil, fmt.Sprintf("no registered client type %q for backend %q", cfg.Type(), cfg.Name()),
		)
	}
	client, err := factory(ctx, cfg)
	if err != nil {
		return nil, errors.Annotatef(err, "opening backend %q", cfg.Name())
	}
	return client, nil
}

// RegisterClient registers a control client implementation under the
// given type name. It panics if the type is already registered.
func RegisterClient(clientType string, factory NewControlClientFunc) {
	if err := globalRegistry.register(clientType, factory); err != nil {
		panic(fmt.Errorf("volmirror: %v", err))
	}
}

// RegisteredClientTypes returns the registered client type names in
// natural sort order.
func RegisteredClientTypes() []string {
	types := make([]string, 0, len(globalRegistry.factories))
	for t := range globalRegistry.factories {
		types = append(types, t)
	}
	naturalsort.Sort(types)
	return types
}

// NewClient opens a control client for the backend described by cfg,
// using the factory registered for the backend's type.
func NewClient(ctx context.Context, cfg Config) (ControlClient, error) {
	return globalRegistry.newClient(ctx, cfg)
}
