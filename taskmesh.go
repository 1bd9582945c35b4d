// Package taskmesh provides a high-level façade over the agent registry and
// the task orchestrator, enabling rapid construction of capability-routed
// task-processing systems. Most applications interact with this package by:
//  1. Creating a TaskMesh via New() with a core.Invoker for reaching agents
//  2. Registering one or more capability-tagged agents
//  3. Starting the mesh and submitting tasks (Submit), then polling Status
//     or receiving terminal results through a task callback
//
// The façade delegates scheduling to orchestrator.Orchestrator and agent
// bookkeeping to registry.Registry while keeping setup ergonomics concise.
// All defaults are safe for local development and testing; production
// deployments typically supply a structured logger and tuned intervals.
package taskmesh

import (
	"time"

	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/metrics"
	"github.com/hupe1980/taskmesh/orchestrator"
	"github.com/hupe1980/taskmesh/registry"
)

// Options configures the TaskMesh instance.
type Options struct {
	// WorkerCapacity limits the number of tasks that can execute
	// simultaneously. This prevents resource exhaustion and provides
	// backpressure; queued tasks wait for a free slot in priority order.
	WorkerCapacity int

	// HealthCheckInterval is the cadence at which agent health scores are
	// re-derived into statuses.
	HealthCheckInterval time.Duration

	// ConsensusWindow bounds ballot collection when a task runs under the
	// consensus strategy.
	ConsensusWindow time.Duration

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// Metrics receives orchestrator counters and gauges (defaults to a fresh
	// registry if nil).
	Metrics *metrics.Registry

	// Now overrides the clock, primarily for tests.
	Now func() time.Time
}

// TaskMesh is the high-level façade aggregating the registry and the
// orchestrator.
type TaskMesh struct {
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
}

// New creates a new TaskMesh instance with optional overrides.
func New(invoker core.Invoker, optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	reg := registry.New(func(o *registry.Options) {
		if opts.HealthCheckInterval > 0 {
			o.HealthCheckInterval = opts.HealthCheckInterval
		}
		o.Logger = opts.Logger
		o.Now = opts.Now
	})

	orch := orchestrator.New(reg, invoker, func(o *orchestrator.Options) {
		if opts.WorkerCapacity > 0 {
			o.WorkerCapacity = opts.WorkerCapacity
		}
		if opts.ConsensusWindow > 0 {
			o.ConsensusWindow = opts.ConsensusWindow
		}
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.Now = opts.Now
	})

	return &TaskMesh{registry: reg, orchestrator: orch}
}

// NewFromConfig builds a mesh from a loaded configuration document: registry
// and orchestrator tuning are applied and all declared agents are registered
// as active.
func NewFromConfig(cfg *config.Config, invoker core.Invoker, optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	reg := registry.New(func(o *registry.Options) {
		if d := cfg.Registry.HealthCheckInterval.Std(); d > 0 {
			o.HealthCheckInterval = d
		}
		if cfg.Registry.FailureThreshold > 0 {
			o.FailureThreshold = cfg.Registry.FailureThreshold
		}
		if d := cfg.Registry.CooldownPeriod.Std(); d > 0 {
			o.CooldownPeriod = d
		}
		o.Logger = opts.Logger
		o.Now = opts.Now
	})

	orch := orchestrator.New(reg, invoker, func(o *orchestrator.Options) {
		if cfg.Orchestrator.WorkerCapacity > 0 {
			o.WorkerCapacity = cfg.Orchestrator.WorkerCapacity
		}
		if d := cfg.Orchestrator.DispatchInterval.Std(); d > 0 {
			o.DispatchInterval = d
		}
		if d := cfg.Orchestrator.TimeoutCheckInterval.Std(); d > 0 {
			o.TimeoutCheckInterval = d
		}
		if d := cfg.Orchestrator.MetricsInterval.Std(); d > 0 {
			o.MetricsInterval = d
		}
		if d := cfg.Orchestrator.ConsensusWindow.Std(); d > 0 {
			o.ConsensusWindow = d
		}
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.Now = opts.Now
	})

	m := &TaskMesh{registry: reg, orchestrator: orch}
	for _, agent := range cfg.BuildAgents() {
		m.RegisterAgent(agent)
	}
	return m
}

// RegisterAgent adds an agent to the underlying registry and marks it active
// so it is immediately eligible for dispatch. Health monitoring may later
// degrade it based on observed performance.
func (m *TaskMesh) RegisterAgent(agent *registry.Agent) {
	m.registry.Register(agent)
	m.registry.SetStatus(agent.ID, registry.StatusActive)
}

// Registry exposes the underlying agent registry for discovery queries and
// performance inspection.
func (m *TaskMesh) Registry() *registry.Registry { return m.registry }

// Orchestrator exposes the underlying orchestrator for queue inspection and
// wait estimation.
func (m *TaskMesh) Orchestrator() *orchestrator.Orchestrator { return m.orchestrator }

// Start launches the scheduling loops and the agent health monitor. Starting
// twice is a no-op.
func (m *TaskMesh) Start() {
	m.registry.StartHealthMonitor()
	m.orchestrator.Start()
}

// Shutdown stops the loops, cancels in-flight work and waits for it to wind
// down. Completed results remain queryable afterwards.
func (m *TaskMesh) Shutdown() {
	m.orchestrator.Shutdown()
	m.registry.StopHealthMonitor()
}

// Submit validates the spec and enqueues a new task, returning a receipt with
// the assigned task ID and an estimated wait.
func (m *TaskMesh) Submit(spec core.TaskSpec) (orchestrator.Receipt, error) {
	return m.orchestrator.Submit(spec)
}

// Status returns a point-in-time snapshot of a task's result.
func (m *TaskMesh) Status(taskID string) (core.TaskResult, error) {
	return m.orchestrator.Status(taskID)
}

// Cancel requests cancellation of a queued or active task. It reports whether
// this call transitioned the task; cancelling a terminal or unknown task
// returns false.
func (m *TaskMesh) Cancel(taskID string) bool {
	return m.orchestrator.Cancel(taskID)
}

// Wait polls until the task reaches a terminal state or the timeout elapses.
// It is a convenience for synchronous callers; asynchronous consumers should
// prefer the TaskSpec callback.
func (m *TaskMesh) Wait(taskID string, timeout time.Duration) (core.TaskResult, error) {
	deadline := time.Now().Add(timeout)
	for {
		result, err := m.orchestrator.Status(taskID)
		if err != nil {
			return core.TaskResult{}, err
		}
		if result.Status.Terminal() {
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, core.ErrWaitTimeout
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Metrics returns the orchestrator's aggregated operational overview.
func (m *TaskMesh) Metrics() orchestrator.Overview {
	return m.orchestrator.Metrics()
}
