// Package orchestrator owns the scheduling core: the priority queue, the
// bounded active-task table, and the three background loops (dispatcher,
// timeout monitor, metrics aggregator) that move tasks from submission to a
// terminal result.
//
// Scheduling model: a single dispatcher goroutine drives admission; each
// admitted task executes in its own goroutine so a slow or hung agent
// invocation never blocks the dispatcher or other tasks. Worker capacity is
// the sole backpressure mechanism: a full active table pauses admission, not
// Submit, which always succeeds by enqueuing.
//
// Ordering: within one priority tier dispatch order equals submission order;
// across tiers strictly by priority ordinal. There is no aging, so sustained
// high-priority load starves lower tiers. That is an accepted, documented
// property of the scheduler, not a bug.
package orchestrator
