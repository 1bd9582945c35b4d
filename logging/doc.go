// Package logging provides a minimal logging interface and adapters for taskmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the orchestrator, registry and strategies use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - TaskMeshLogger with contextual helpers for tasks and agents
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	orch := orchestrator.New(reg, invoker, func(o *orchestrator.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
