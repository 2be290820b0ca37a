// Package config loads krscd's YAML configuration: the kernel redistribution
// priority, the Redis address backing the IPC layer, and the set of routing
// tables with their per-table flags and network statements (spec.md §6).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/redist"
)

// rtprotoStatic is RTPROT_STATIC, the Linux kernel protocol id for
// statically configured routes. The configured fib priority must sit
// strictly above it so daemon-installed routes never collide with a route
// the kernel itself considers static (spec.md §6, kr_check_prio).
const rtprotoStatic = 4

// Config is the top-level krscd configuration.
type Config struct {
	FIBPriority uint8          `yaml:"fib_priority"`
	RedisAddr   string         `yaml:"redis_addr"`
	RedisDB     int            `yaml:"redis_db"`
	LogLevel    string         `yaml:"log_level"`
	Tables      []TableConfig  `yaml:"tables"`
}

// TableConfig configures one routing table.
type TableConfig struct {
	ID           uint32             `yaml:"id"`
	Name         string             `yaml:"name"`
	NoFIB        bool               `yaml:"no_fib"`
	NoFIBSync    bool               `yaml:"no_fib_sync"`
	NoEvaluate   bool               `yaml:"no_evaluate"`
	NexthopOwner uint32             `yaml:"nexthop_owner"`
	Networks     []NetworkStatement `yaml:"networks"`
}

// NetworkStatement is one configured "network" rule, in the human-readable
// form it takes in YAML before conversion to redist.NetworkStatement.
type NetworkStatement struct {
	Kind     string `yaml:"kind"`
	Prefix   string `yaml:"prefix,omitempty"`
	Label    string `yaml:"label,omitempty"`
	Priority uint8  `yaml:"priority,omitempty"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.RedisAddr == "" {
		c.RedisAddr = "127.0.0.1:6379"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate enforces the fib-priority bound, unique table ids, and that
// every borrowed table's nexthop owner names a table actually defined in
// this configuration.
func (c *Config) Validate() error {
	if c.FIBPriority <= rtprotoStatic || c.FIBPriority == 255 {
		return fmt.Errorf("fib_priority %d must be in (%d, 255)", c.FIBPriority, rtprotoStatic)
	}

	seen := make(map[uint32]bool, len(c.Tables))
	for _, t := range c.Tables {
		if seen[t.ID] {
			return fmt.Errorf("table %d: duplicate id", t.ID)
		}
		seen[t.ID] = true
	}
	for _, t := range c.Tables {
		if t.NexthopOwner == 0 || t.NexthopOwner == t.ID {
			continue
		}
		if !seen[t.NexthopOwner] {
			return fmt.Errorf("table %d: nexthop_owner %d is not a configured table", t.ID, t.NexthopOwner)
		}
		for _, s := range t.Networks {
			if _, err := statementKind(s.Kind); err != nil {
				return fmt.Errorf("table %d: %w", t.ID, err)
			}
		}
	}
	for _, t := range c.Tables {
		for _, s := range t.Networks {
			if _, err := toRedistStatement(s); err != nil {
				return fmt.Errorf("table %d: %w", t.ID, err)
			}
		}
	}
	return nil
}

// Filter builds the redist.Filter for this table's configured network
// statements.
func (t *TableConfig) Filter() (*redist.Filter, error) {
	statements := make([]redist.NetworkStatement, 0, len(t.Networks))
	for _, s := range t.Networks {
		rs, err := toRedistStatement(s)
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", t.ID, err)
		}
		statements = append(statements, rs)
	}
	return redist.NewFilter(statements), nil
}

func statementKind(kind string) (redist.StatementKind, error) {
	switch kind {
	case "connected":
		return redist.StatementConnected, nil
	case "static":
		return redist.StatementStatic, nil
	case "default":
		return redist.StatementDefault, nil
	case "prefix":
		return redist.StatementPrefix, nil
	case "label":
		return redist.StatementLabel, nil
	case "priority":
		return redist.StatementPriority, nil
	case "redistribute-all":
		return redist.StatementRedistributeAll, nil
	default:
		return 0, fmt.Errorf("network statement: unknown kind %q", kind)
	}
}

func toRedistStatement(s NetworkStatement) (redist.NetworkStatement, error) {
	kind, err := statementKind(s.Kind)
	if err != nil {
		return redist.NetworkStatement{}, err
	}

	rs := redist.NetworkStatement{Kind: kind, Label: s.Label, Priority: s.Priority}
	if kind == redist.StatementPrefix {
		if s.Prefix == "" {
			return redist.NetworkStatement{}, fmt.Errorf("network statement: kind prefix requires a prefix")
		}
		p, err := addr.ParsePrefix(s.Prefix)
		if err != nil {
			return redist.NetworkStatement{}, fmt.Errorf("network statement: %w", err)
		}
		rs.Prefix = p
	}
	if kind == redist.StatementLabel && s.Label == "" {
		return redist.NetworkStatement{}, fmt.Errorf("network statement: kind label requires a label")
	}
	return rs, nil
}
