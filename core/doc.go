// Package core provides the foundational domain types and contracts used by
// taskmesh. It defines the core abstractions for:
//
//   - Tasks (abstract work items with priority, strategy and capability requirements)
//   - Assignments (one attempt of one task on one agent, with its own lifecycle)
//   - TaskResults (the single aggregated outcome record of a task)
//   - The Invoker contract through which agents are executed
//
// The package intentionally keeps implementation concerns (queueing,
// scheduling, agent discovery, concrete invokers) out of scope, exposing small
// types and interfaces so the surrounding packages can be composed and tested
// in isolation.
package core
