package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const sampleYAML = `
orchestrator:
  worker_capacity: 5
  dispatch_interval: 50ms
  consensus_window: 10s
registry:
  failure_threshold: 2
  cooldown_period: 1m
agents:
  - id: researcher-1
    category: research
    capabilities:
      - name: web_search
        description: Search the public web
  - id: coder-1
    name: Coder
    category: engineering
    dependencies: [researcher-1]
`

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	assert.NoError(t, err)

	assert.Equal(t, 5, cfg.Orchestrator.WorkerCapacity)
	assert.Equal(t, 50*time.Millisecond, cfg.Orchestrator.DispatchInterval.Std())
	assert.Equal(t, 10*time.Second, cfg.Orchestrator.ConsensusWindow.Std())
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.TimeoutCheckInterval.Std())
	assert.Equal(t, time.Minute, cfg.Registry.HealthCheckInterval.Std())
	assert.Equal(t, 2, cfg.Registry.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Registry.CooldownPeriod.Std())
}

func TestParse_DurationAsBareSeconds(t *testing.T) {
	cfg, err := Parse([]byte("orchestrator:\n  consensus_window: 45\n"))
	assert.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Orchestrator.ConsensusWindow.Std())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("orchestrator:\n  worker_capacity: 0\n"))
	assert.ErrorContains(t, err, "worker_capacity")

	_, err = Parse([]byte("agents:\n  - name: anonymous\n"))
	assert.ErrorContains(t, err, "id is required")

	_, err = Parse([]byte("agents:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte("not: [valid"))
	assert.Error(t, err)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, 20, cfg.Orchestrator.WorkerCapacity)
	assert.Empty(t, cfg.Agents)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskmesh.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Len(t, cfg.Agents, 2)
}

func TestBuildAgents(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	assert.NoError(t, err)

	agents := cfg.BuildAgents()
	assert.Len(t, agents, 2)
	assert.Equal(t, "researcher-1", agents[0].Name, "name defaults to id")
	assert.Equal(t, "web_search", agents[0].Capabilities[0].Name)
	assert.Equal(t, "Coder", agents[1].Name)
	assert.Equal(t, []string{"researcher-1"}, agents[1].Dependencies)
}
