// Package config loads taskmesh configuration from YAML: orchestrator and
// registry tuning plus declarative agent definitions for registry bootstrap.
// Everything is optional; zero values fall back to the package defaults used
// across the library.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/taskmesh/registry"
)

// Duration is a time.Duration that unmarshals from YAML either as a Go
// duration string ("100ms", "5s") or as a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var seconds float64
	if err := node.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration at line %d", node.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration document.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Registry     RegistryConfig     `yaml:"registry"`
	Agents       []AgentDefinition  `yaml:"agents"`
}

// OrchestratorConfig tunes the scheduling core.
type OrchestratorConfig struct {
	WorkerCapacity       int      `yaml:"worker_capacity"`
	DispatchInterval     Duration `yaml:"dispatch_interval"`
	TimeoutCheckInterval Duration `yaml:"timeout_check_interval"`
	MetricsInterval      Duration `yaml:"metrics_interval"`
	ConsensusWindow      Duration `yaml:"consensus_window"`
}

// RegistryConfig tunes agent health monitoring.
type RegistryConfig struct {
	HealthCheckInterval Duration `yaml:"health_check_interval"`
	FailureThreshold    int      `yaml:"failure_threshold"`
	CooldownPeriod      Duration `yaml:"cooldown_period"`
}

// AgentDefinition declares one agent to register at startup.
type AgentDefinition struct {
	ID           string                `yaml:"id"`
	Name         string                `yaml:"name"`
	Category     string                `yaml:"category"`
	Description  string                `yaml:"description"`
	Capabilities []registry.Capability `yaml:"capabilities"`
	Dependencies []string              `yaml:"dependencies"`
}

func defaults() Config {
	return Config{
		Orchestrator: OrchestratorConfig{
			WorkerCapacity:       20,
			DispatchInterval:     Duration(100 * time.Millisecond),
			TimeoutCheckInterval: Duration(5 * time.Second),
			MetricsInterval:      Duration(10 * time.Second),
			ConsensusWindow:      Duration(30 * time.Second),
		},
		Registry: RegistryConfig{
			HealthCheckInterval: Duration(time.Minute),
			FailureThreshold:    3,
			CooldownPeriod:      Duration(5 * time.Minute),
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Orchestrator.WorkerCapacity < 1 {
		return fmt.Errorf("orchestrator.worker_capacity must be at least 1")
	}
	seen := make(map[string]struct{}, len(c.Agents))
	for i, def := range c.Agents {
		if def.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if _, dup := seen[def.ID]; dup {
			return fmt.Errorf("agents[%d]: duplicate agent id %q", i, def.ID)
		}
		seen[def.ID] = struct{}{}
	}
	return nil
}

// BuildAgents converts the declared definitions into registry agents.
func (c *Config) BuildAgents() []*registry.Agent {
	out := make([]*registry.Agent, 0, len(c.Agents))
	for _, def := range c.Agents {
		name := def.Name
		if name == "" {
			name = def.ID
		}
		out = append(out, &registry.Agent{
			ID:           def.ID,
			Name:         name,
			Category:     def.Category,
			Description:  def.Description,
			Capabilities: def.Capabilities,
			Dependencies: def.Dependencies,
		})
	}
	return out
}
