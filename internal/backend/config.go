// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"fmt"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
)

const (
	typeKey               = "type"
	vserverKey            = "vserver"
	replicationTargetsKey = "replication-targets"
	aggregateMapKey       = "aggregate-map"
	quiesceTimeoutKey     = "quiesce-timeout"
	settingsKey           = "settings"
)

// defaultQuiesceTimeout bounds how long a failover waits for an
// in-flight transfer to drain before aborting it.
const defaultQuiesceTimeout = time.Hour

var configSchema = environschema.Fields{
	typeKey: {
		Description: "The control client implementation driving the backend.",
		Type:        environschema.Tstring,
		Mandatory:   true,
		Immutable:   true,
	},
	vserverKey: {
		Description: "The storage virtual server owning the backend's pools.",
		Type:        environschema.Tstring,
		Mandatory:   true,
		Immutable:   true,
	},
	replicationTargetsKey: {
		Description: "The names of the backends that replicate this backend's pools.",
		Type:        environschema.Tlist,
	},
	quiesceTimeoutKey: {
		Description: "How long to wait for in-flight transfers to drain before aborting them.",
		Type:        environschema.Tstring,
	},
	settingsKey: {
		Description: "Client-specific settings, such as the management endpoint and credentials.",
		Type:        environschema.Tattrs,
		Secret:      true,
	},
}

var configDefaults = schema.Defaults{
	replicationTargetsKey: schema.Omit,
	aggregateMapKey:       schema.Omit,
	quiesceTimeoutKey:     defaultQuiesceTimeout.String(),
	settingsKey:           schema.Omit,
}

// configFields is the validation schema derived from configSchema.
// The aggregate map is a map of maps, which the field schema cannot
// express, so its checker is overlaid here.
var configFields = func() schema.Fields {
	fs, _, err := configSchema.ValidationSchema()
	if err != nil {
		panic(err)
	}
	fs[replicationTargetsKey] = schema.List(schema.String())
	fs[aggregateMapKey] = schema.StringMap(schema.StringMap(schema.String()))
	return fs
}()

var configChecker = schema.StrictFieldMap(configFields, configDefaults)

// ConfigSchema describes the attributes recorded for each backend.
func ConfigSchema() environschema.Fields {
	return configSchema
}

// Config is the resolved configuration of a single backend. Values
// are validated at construction and immutable thereafter; accessors
// returning slices or maps return copies.
type Config struct {
	name           string
	clientType     string
	vserver        string
	targets        []string
	aggregateMaps  map[string]map[string]string
	quiesceTimeout time.Duration
	settings       map[string]string
}

// NewConfig validates the given attributes and returns the resolved
// configuration for the named backend. Validation failures satisfy
// errors.IsNotValid.
func NewConfig(name string, attrs map[string]interface{}) (Config, error) {
	if name == "" {
		return Config{}, errors.NotValidf("empty backend name")
	}
	coerced, err := configChecker.Coerce(attrs, nil)
	if err != nil {
		return Config{}, errors.NewNotValid(err, fmt.Sprintf("backend %q configuration", name))
	}
	valid := coerced.(map[string]interface{})

	cfg := Config{
		name:       name,
		clientType: valid[typeKey].(string),
		vserver:    valid[vserverKey].(string),
	}
	if cfg.clientType == "" {
		return Config{}, errors.NotValidf("backend %q with empty type", name)
	}
	if cfg.vserver == "" {
		return Config{}, errors.NotValidf("backend %q with empty vserver", name)
	}

	timeout, err := time.ParseDuration(valid[quiesceTimeoutKey].(string))
	if err != nil {
		return Config{}, errors.NewNotValid(err, fmt.Sprintf("backend %q quiesce-timeout", name))
	}
	if timeout <= 0 {
		return Config{}, errors.NotValidf("backend %q quiesce-timeout %v", name, timeout)
	}
	cfg.quiesceTimeout = timeout

	seen := set.NewStrings()
	for _, t := range asStringList(valid[replicationTargetsKey]) {
		if t == "" {
			return Config{}, errors.NotValidf("backend %q with empty replication target", name)
		}
		if t == name {
			return Config{}, errors.NotValidf("backend %q replicating to itself", name)
		}
		if seen.Contains(t) {
			return Config{}, errors.NotValidf("backend %q with duplicate replication target %q", name, t)
		}
		seen.Add(t)
		cfg.targets = append(cfg.targets, t)
	}

	if raw, ok := valid[aggregateMapKey].(map[string]interface{}); ok {
		cfg.aggregateMaps = make(map[string]map[string]string)
		for target, m := range raw {
			if !seen.Contains(target) {
				return Config{}, errors.NotValidf("backend %q aggregate map for unknown target %q", name, target)
			}
			inner := make(map[string]string)
			for src, dst := range m.(map[string]interface{}) {
				inner[src] = dst.(string)
			}
			cfg.aggregateMaps[target] = inner
		}
	}

	if raw, ok := valid[settingsKey].(map[string]string); ok {
		cfg.settings = make(map[string]string, len(raw))
		for k, v := range raw {
			cfg.settings[k] = v
		}
	}
	return cfg, nil
}

func asStringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprintf("%v", item)
	}
	return out
}

// Name returns the backend's name.
func (c Config) Name() string {
	return c.name
}

// Type returns the registered client type driving the backend.
func (c Config) Type() string {
	return c.clientType
}

// Vserver returns the virtual server owning the backend's pools.
func (c Config) Vserver() string {
	return c.vserver
}

// QuiesceTimeout returns how long failover waits for in-flight
// transfers to drain before aborting them.
func (c Config) QuiesceTimeout() time.Duration {
	return c.quiesceTimeout
}

// ReplicationTargets returns the names of the backends configured to
// replicate this backend's pools, in configuration order.
func (c Config) ReplicationTargets() []string {
	out := make([]string, len(c.targets))
	copy(out, c.targets)
	return out
}

// AggregateMapTo returns the source to destination aggregate mapping
// for the named replication target, or nil if none is configured.
func (c Config) AggregateMapTo(target string) map[string]string {
	m, ok := c.aggregateMaps[target]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Settings returns the client-specific settings for the backend.
func (c Config) Settings() map[string]string {
	out := make(map[string]string, len(c.settings))
	for k, v := range c.settings {
		out[k] = v
	}
	return out
}
