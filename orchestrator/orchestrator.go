package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/dispatch"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/metrics"
	"github.com/hupe1980/taskmesh/queue"
	"github.com/hupe1980/taskmesh/registry"
	"github.com/hupe1980/taskmesh/scoring"
)

// Default tuning values.
const (
	// DefaultWorkerCapacity caps the active-task table.
	DefaultWorkerCapacity = 20
	// DefaultDispatchInterval is the dispatcher's idle polling cadence.
	DefaultDispatchInterval = 100 * time.Millisecond
	// DefaultTimeoutCheckInterval is the timeout monitor tick.
	DefaultTimeoutCheckInterval = 5 * time.Second
	// DefaultMetricsInterval is the metrics aggregator tick.
	DefaultMetricsInterval = 10 * time.Second
	// fallbackAvgExecution seeds wait estimates before any task completes.
	fallbackAvgExecution = 5 * time.Second
)

// Options configures an Orchestrator instance.
type Options struct {
	// WorkerCapacity bounds the active-task table. Defaults to
	// DefaultWorkerCapacity.
	WorkerCapacity int
	// DispatchInterval is the dispatcher's idle tick. Defaults to
	// DefaultDispatchInterval; slot releases and submissions wake the
	// dispatcher immediately regardless.
	DispatchInterval time.Duration
	// TimeoutCheckInterval is the timeout monitor tick.
	TimeoutCheckInterval time.Duration
	// MetricsInterval is the metrics aggregator tick.
	MetricsInterval time.Duration
	// ConsensusWindow bounds ballot collection for the Consensus strategy.
	ConsensusWindow time.Duration
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
	// Metrics defaults to a fresh registry if nil.
	Metrics *metrics.Registry
	// Now overrides the clock, primarily for tests.
	Now func() time.Time
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	TaskID               string        `json:"task_id"`
	Priority             core.Priority `json:"priority"`
	EstimatedWaitSeconds float64       `json:"estimated_wait_seconds"`
}

// Overview is the orchestrator-level metrics snapshot.
type Overview struct {
	TasksReceived    int64                                  `json:"tasks_received"`
	TasksCompleted   int64                                  `json:"tasks_completed"`
	TasksFailed      int64                                  `json:"tasks_failed"`
	TasksTimedOut    int64                                  `json:"tasks_timed_out"`
	TasksCancelled   int64                                  `json:"tasks_cancelled"`
	QueueSize        int                                    `json:"queue_size"`
	ActiveTasks      int                                    `json:"active_tasks"`
	AvgExecutionTime time.Duration                          `json:"avg_execution_time"`
	SuccessRate      float64                                `json:"success_rate"`
	FailureRate      float64                                `json:"failure_rate"`
	TimeoutRate      float64                                `json:"timeout_rate"`
	AgentPerformance map[string]registry.PerformanceSnapshot `json:"agent_performance"`
}

// QueueStatus summarizes queue occupancy and capacity.
type QueueStatus struct {
	QueueSize         int            `json:"queue_size"`
	ActiveTasks       int            `json:"active_tasks"`
	WorkerCapacity    int            `json:"worker_capacity"`
	AvailableCapacity int            `json:"available_capacity"`
	ByPriority        map[string]int `json:"by_priority"`
}

// taskState is the orchestrator's live record of one task. All mutation goes
// through its mutex; snapshots handed to callers are value copies.
type taskState struct {
	mu       sync.Mutex
	task     *core.Task
	result   core.TaskResult
	exec     *dispatch.Execution
	cancel   context.CancelFunc
	callback func(core.TaskResult)
}

// transition moves the result to status iff the current status is not
// terminal, and reports whether the move happened.
func (s *taskState) transition(status core.TaskStatus, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result.Status.Terminal() {
		return false
	}
	s.result.Status = status
	if status.Terminal() {
		s.result.CompletedAt = now
		s.result.ExecutionTime = now.Sub(s.result.CreatedAt)
		if s.exec != nil {
			s.result.Assignments = s.exec.Assignments()
		}
	}
	return true
}

// snapshot returns a caller-safe copy of the current result, with live
// assignment records merged in for tasks still processing.
func (s *taskState) snapshot() core.TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.result.Clone()
	if !out.Status.Terminal() && s.exec != nil {
		out.Assignments = s.exec.Assignments()
	}
	return out
}

// Orchestrator schedules tasks onto a bounded worker pool, executing each via
// its dispatch strategy over agents discovered from the registry. Public
// methods are safe for concurrent use.
type Orchestrator struct {
	reg     *registry.Registry
	scorer  *scoring.Scorer
	invoker core.Invoker
	queue   *queue.Queue
	logger  logging.Logger
	meter   *metrics.Registry
	now     func() time.Time

	capacity             int
	dispatchInterval     time.Duration
	timeoutCheckInterval time.Duration
	metricsInterval      time.Duration
	consensusWindow      time.Duration

	mu     sync.Mutex
	states map[string]*taskState
	active map[string]*taskState

	received  int64
	completed int64
	failed    int64
	timedOut  int64
	cancelled int64
	totalExec time.Duration

	kick       chan struct{}
	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// New constructs an orchestrator over the given registry and invoker with
// optional overrides. Start must be called before tasks are dispatched;
// Submit works beforehand and merely queues.
func New(reg *registry.Registry, invoker core.Invoker, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		WorkerCapacity:       DefaultWorkerCapacity,
		DispatchInterval:     DefaultDispatchInterval,
		TimeoutCheckInterval: DefaultTimeoutCheckInterval,
		MetricsInterval:      DefaultMetricsInterval,
		ConsensusWindow:      dispatch.DefaultConsensusWindow,
		Logger:               logging.NoOpLogger{},
		Now:                  time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	return &Orchestrator{
		reg:                  reg,
		scorer:               scoring.New(reg),
		invoker:              invoker,
		queue:                queue.New(),
		logger:               opts.Logger,
		meter:                opts.Metrics,
		now:                  opts.Now,
		capacity:             opts.WorkerCapacity,
		dispatchInterval:     opts.DispatchInterval,
		timeoutCheckInterval: opts.TimeoutCheckInterval,
		metricsInterval:      opts.MetricsInterval,
		consensusWindow:      opts.ConsensusWindow,
		states:               make(map[string]*taskState),
		active:               make(map[string]*taskState),
		kick:                 make(chan struct{}, 1),
		rootCtx:              rootCtx,
		rootCancel:           rootCancel,
	}
}

// Start launches the dispatcher, timeout monitor and metrics aggregator
// loops. Starting twice is a no-op.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		o.wg.Add(3)
		go o.dispatchLoop()
		go o.timeoutLoop()
		go o.metricsLoop()
		o.logger.Info("orchestrator started", "worker_capacity", o.capacity)
	})
}

// Shutdown stops the loops and cancels in-flight executions, then waits for
// them to wind down. Results remain queryable afterwards.
func (o *Orchestrator) Shutdown() {
	o.stopOnce.Do(func() {
		o.rootCancel()
		o.wg.Wait()
		o.logger.Info("orchestrator stopped")
	})
}

// Submit validates the spec and enqueues a new task. Validation errors are
// returned synchronously; everything after admission is reported through the
// task's result. Repeated submissions of identical specs each get a fresh id.
func (o *Orchestrator) Submit(spec core.TaskSpec) (Receipt, error) {
	now := o.now()
	task, err := core.NewTask(uuid.NewString(), spec, now)
	if err != nil {
		return Receipt{}, err
	}

	state := &taskState{
		task: task,
		result: core.TaskResult{
			TaskID:    task.ID,
			Status:    core.TaskQueued,
			Priority:  task.Priority,
			Strategy:  task.Strategy,
			CreatedAt: now,
		},
		callback: spec.Callback,
	}

	o.mu.Lock()
	o.states[task.ID] = state
	o.received++
	o.mu.Unlock()

	o.queue.Push(task)
	o.meter.IncCounter("taskmesh_tasks_received_total", nil, 1)
	o.wake()

	o.logger.Info("task submitted", "task_id", task.ID, "priority", task.Priority.String(), "strategy", task.Strategy.String())

	return Receipt{
		TaskID:               task.ID,
		Priority:             task.Priority,
		EstimatedWaitSeconds: o.EstimateWait(task.Priority).Seconds(),
	}, nil
}

// Status returns a snapshot of the task's result, or ErrTaskNotFound for a
// genuinely unknown id. It never panics for unknown ids.
func (o *Orchestrator) Status(taskID string) (core.TaskResult, error) {
	o.mu.Lock()
	state, ok := o.states[taskID]
	o.mu.Unlock()
	if !ok {
		return core.TaskResult{}, core.ErrTaskNotFound
	}
	return state.snapshot(), nil
}

// Cancel removes a still-queued task, or marks an active task Cancelled and
// best-effort-cancels its assignments. It returns false for unknown ids and
// for tasks already in a terminal state, so a second Cancel of the same task
// reports false without error.
func (o *Orchestrator) Cancel(taskID string) bool {
	o.mu.Lock()
	state, ok := o.states[taskID]
	o.mu.Unlock()
	if !ok {
		return false
	}

	now := o.now()

	// Still queued: drop it before it can ever be dispatched.
	if o.queue.Remove(taskID) {
		state.task.Cancel()
		if state.transition(core.TaskCancelled, now) {
			o.recordTerminal(core.TaskCancelled, state)
			return true
		}
		return false
	}

	state.mu.Lock()
	terminal := state.result.Status.Terminal()
	cancel := state.cancel
	exec := state.exec
	state.mu.Unlock()
	if terminal {
		return false
	}

	// Active: cooperative cancellation. The flag stops the strategy at its
	// next boundary; the context handle reaches any in-flight invocations.
	state.task.Cancel()
	if cancel != nil {
		cancel()
	}
	if exec != nil {
		exec.CancelOutstanding()
	}
	if !state.transition(core.TaskCancelled, now) {
		return false
	}
	o.evict(taskID)
	o.recordTerminal(core.TaskCancelled, state)
	o.logger.Info("task cancelled", "task_id", taskID)
	return true
}

// EstimateWait estimates queue latency for a submission at the given
// priority: backlog times the rolling average execution time, scaled so
// higher priorities expect shorter waits.
func (o *Orchestrator) EstimateWait(priority core.Priority) time.Duration {
	o.mu.Lock()
	activeCount := len(o.active)
	completed := o.completed
	totalExec := o.totalExec
	o.mu.Unlock()

	avg := fallbackAvgExecution
	if completed > 0 {
		avg = totalExec / time.Duration(completed)
	}
	backlog := o.queue.Size() + activeCount
	return time.Duration(float64(backlog) * float64(avg) * priority.WaitFactor())
}

// ListQueue returns result snapshots of queued tasks in dispatch order.
func (o *Orchestrator) ListQueue() []core.TaskResult {
	tasks := o.queue.Tasks()
	out := make([]core.TaskResult, 0, len(tasks))
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, task := range tasks {
		if state, ok := o.states[task.ID]; ok {
			out = append(out, state.snapshot())
		}
	}
	return out
}

// ListActive returns result snapshots of active tasks ordered by submission
// time.
func (o *Orchestrator) ListActive() []core.TaskResult {
	o.mu.Lock()
	states := make([]*taskState, 0, len(o.active))
	for _, state := range o.active {
		states = append(states, state)
	}
	o.mu.Unlock()

	out := make([]core.TaskResult, len(states))
	for i, state := range states {
		out[i] = state.snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// QueueStatus summarizes current occupancy, capacity and the per-priority
// composition of the backlog.
func (o *Orchestrator) QueueStatus() QueueStatus {
	tasks := o.queue.Tasks()
	byPriority := make(map[string]int)
	for _, t := range tasks {
		byPriority[t.Priority.String()]++
	}
	o.mu.Lock()
	activeCount := len(o.active)
	o.mu.Unlock()
	return QueueStatus{
		QueueSize:         len(tasks),
		ActiveTasks:       activeCount,
		WorkerCapacity:    o.capacity,
		AvailableCapacity: o.capacity - activeCount,
		ByPriority:        byPriority,
	}
}

// Metrics returns the orchestrator-level metrics snapshot including per-agent
// performance.
func (o *Orchestrator) Metrics() Overview {
	o.mu.Lock()
	ov := Overview{
		TasksReceived:  o.received,
		TasksCompleted: o.completed,
		TasksFailed:    o.failed,
		TasksTimedOut:  o.timedOut,
		TasksCancelled: o.cancelled,
		ActiveTasks:    len(o.active),
	}
	if o.completed > 0 {
		ov.AvgExecutionTime = o.totalExec / time.Duration(o.completed)
	}
	if o.received > 0 {
		ov.SuccessRate = float64(o.completed) / float64(o.received)
		ov.FailureRate = float64(o.failed) / float64(o.received)
		ov.TimeoutRate = float64(o.timedOut) / float64(o.received)
	}
	o.mu.Unlock()

	ov.QueueSize = o.queue.Size()
	ov.AgentPerformance = o.reg.PerformanceAll()
	return ov
}

// Meter exposes the underlying metrics registry (e.g. for Prometheus
// rendering by an outer layer).
func (o *Orchestrator) Meter() *metrics.Registry { return o.meter }

// wake nudges the dispatcher without waiting for its idle tick.
func (o *Orchestrator) wake() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) dispatchLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.dispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.rootCtx.Done():
			return
		case <-ticker.C:
		case <-o.kick:
		}
		o.dispatchReady()
	}
}

// dispatchReady admits queued tasks while capacity allows. A panic inside
// admission of one task is contained: the loop logs it and keeps scheduling
// subsequent tasks.
func (o *Orchestrator) dispatchReady() {
	for {
		o.mu.Lock()
		hasCapacity := len(o.active) < o.capacity
		o.mu.Unlock()
		if !hasCapacity {
			return
		}

		task := o.queue.Pop()
		if task == nil {
			return
		}
		o.admit(task)
	}
}

func (o *Orchestrator) admit(task *core.Task) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("internal scheduler error", "task_id", task.ID, "panic", fmt.Sprint(r))
		}
	}()

	o.mu.Lock()
	state, ok := o.states[task.ID]
	o.mu.Unlock()
	if !ok {
		return
	}

	// Cancelled while queued but after Pop won the race: finalize, do not run.
	if task.Cancelled() {
		if state.transition(core.TaskCancelled, o.now()) {
			o.recordTerminal(core.TaskCancelled, state)
		}
		return
	}

	if !state.transition(core.TaskProcessing, o.now()) {
		return
	}

	execCtx, cancel := context.WithDeadline(o.rootCtx, task.Deadline())
	state.mu.Lock()
	state.cancel = cancel
	state.mu.Unlock()

	o.mu.Lock()
	o.active[task.ID] = state
	o.mu.Unlock()

	o.logger.Info("task dispatched", "task_id", task.ID, "priority", task.Priority.String(), "strategy", task.Strategy.String())

	o.wg.Add(1)
	go o.runTask(execCtx, state)
}

// runTask executes one admitted task to its terminal state and releases its
// capacity slot.
func (o *Orchestrator) runTask(ctx context.Context, state *taskState) {
	defer o.wg.Done()
	task := state.task

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("internal scheduler error", "task_id", task.ID, "panic", fmt.Sprint(r))
			o.finalize(state, core.TaskFailed, nil, fmt.Sprintf("internal scheduler error: %v", r))
		}
		o.evict(task.ID)
		o.wake()
	}()

	candidates := o.scorer.FindSuitableAgents(task)
	if len(candidates) == 0 {
		// Fails without ever consuming an agent: zero assignments recorded.
		o.finalize(state, core.TaskFailed, nil, core.ErrNoEligibleAgents.Error())
		return
	}

	strat, err := dispatch.For(task.Strategy, func(opts *dispatch.Options) {
		opts.ConsensusWindow = o.consensusWindow
	})
	if err != nil {
		o.finalize(state, core.TaskFailed, nil, err.Error())
		return
	}

	exec := dispatch.NewExecution(ctx, task, candidates, o.invoker, func(opts *dispatch.ExecutionOptions) {
		opts.Tracker = &registryTracker{reg: o.reg}
		opts.Logger = o.logger
		opts.Now = o.now
	})
	state.mu.Lock()
	state.exec = exec
	state.mu.Unlock()

	output, err := strat.Execute(exec)

	switch {
	case errors.Is(err, dispatch.ErrCancelled) || task.Cancelled():
		exec.CancelOutstanding()
		o.finalize(state, core.TaskCancelled, nil, "")
	case ctx.Err() != nil && o.now().After(task.Deadline()):
		// The deadline fired mid-execution; the timeout monitor may already
		// have finalized, finalize is monotonic either way.
		exec.CancelOutstanding()
		o.finalize(state, core.TaskTimedOut, nil, "task timed out")
	case err != nil:
		o.finalize(state, core.TaskFailed, nil, err.Error())
	default:
		o.finalize(state, core.TaskCompleted, output, "")
	}
}

// timeoutLoop forces TimedOut on active tasks whose deadline elapsed, freeing
// their capacity slots for queued work.
func (o *Orchestrator) timeoutLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.timeoutCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.rootCtx.Done():
			return
		case <-ticker.C:
			o.expireOverdue()
		}
	}
}

func (o *Orchestrator) expireOverdue() {
	now := o.now()

	o.mu.Lock()
	var overdue []*taskState
	for _, state := range o.active {
		if now.After(state.task.Deadline()) {
			overdue = append(overdue, state)
		}
	}
	o.mu.Unlock()

	for _, state := range overdue {
		state.mu.Lock()
		cancel := state.cancel
		exec := state.exec
		state.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if exec != nil {
			exec.CancelOutstanding()
		}
		if o.finalize(state, core.TaskTimedOut, nil, "task timed out") {
			o.logger.Warn("task timed out", "task_id", state.task.ID, "timeout", state.task.Timeout.String())
		}
		o.evict(state.task.ID)
	}
	if len(overdue) > 0 {
		o.wake()
	}
}

// metricsLoop snapshots queue and active occupancy into the metrics registry.
func (o *Orchestrator) metricsLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.rootCtx.Done():
			return
		case <-ticker.C:
			o.publishGauges()
		}
	}
}

func (o *Orchestrator) publishGauges() {
	o.mu.Lock()
	activeCount := len(o.active)
	completed := o.completed
	totalExec := o.totalExec
	o.mu.Unlock()

	o.meter.SetGauge("taskmesh_queue_size", nil, float64(o.queue.Size()))
	o.meter.SetGauge("taskmesh_active_tasks", nil, float64(activeCount))
	if completed > 0 {
		avg := totalExec / time.Duration(completed)
		o.meter.SetGauge("taskmesh_avg_execution_seconds", nil, avg.Seconds())
	}
}

// finalize transitions the task to a terminal state, records counters and
// fires the completion callback. Reports whether this call won the
// transition.
func (o *Orchestrator) finalize(state *taskState, status core.TaskStatus, output map[string]any, errMsg string) bool {
	now := o.now()

	state.mu.Lock()
	if state.result.Status.Terminal() {
		state.mu.Unlock()
		return false
	}
	state.result.Status = status
	state.result.Output = output
	state.result.Error = errMsg
	state.result.CompletedAt = now
	state.result.ExecutionTime = now.Sub(state.result.CreatedAt)
	if state.exec != nil {
		state.result.Assignments = state.exec.Assignments()
	}
	state.mu.Unlock()

	o.recordTerminal(status, state)
	return true
}

// recordTerminal updates counters for a transition that already happened and
// fires the callback exactly once.
func (o *Orchestrator) recordTerminal(status core.TaskStatus, state *taskState) {
	o.mu.Lock()
	switch status {
	case core.TaskCompleted:
		o.completed++
		o.totalExec += state.result.ExecutionTime
	case core.TaskFailed:
		o.failed++
	case core.TaskTimedOut:
		o.timedOut++
	case core.TaskCancelled:
		o.cancelled++
	}
	o.mu.Unlock()

	switch status {
	case core.TaskCompleted:
		o.meter.IncCounter("taskmesh_tasks_completed_total", nil, 1)
	case core.TaskFailed:
		o.meter.IncCounter("taskmesh_tasks_failed_total", nil, 1)
	case core.TaskTimedOut:
		o.meter.IncCounter("taskmesh_tasks_timed_out_total", nil, 1)
	case core.TaskCancelled:
		o.meter.IncCounter("taskmesh_tasks_cancelled_total", nil, 1)
	}

	state.mu.Lock()
	cb := state.callback
	state.callback = nil
	state.mu.Unlock()
	if cb != nil {
		go cb(state.snapshot())
	}

	o.logger.Info("task finalized", "task_id", state.task.ID, "status", string(status))
}

// evict removes a task from the active table, freeing its capacity slot.
func (o *Orchestrator) evict(taskID string) {
	o.mu.Lock()
	delete(o.active, taskID)
	o.mu.Unlock()
}

// registryTracker feeds assignment lifecycle events into the registry's
// per-agent load and performance counters.
type registryTracker struct {
	reg *registry.Registry
}

// AssignmentStarted implements dispatch.Tracker.
func (t *registryTracker) AssignmentStarted(agentID string) {
	t.reg.AssignmentStarted(agentID)
}

// AssignmentFinished implements dispatch.Tracker.
func (t *registryTracker) AssignmentFinished(agentID string, success bool, latency time.Duration) {
	t.reg.AssignmentFinished(agentID)
	t.reg.UpdatePerformance(agentID, success, latency)
}
