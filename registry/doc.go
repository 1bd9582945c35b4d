// Package registry contains the in-memory agent directory. It tracks agent
// definitions, their capabilities (reverse-indexed for task matching), their
// health-derived status, and rolling per-agent performance counters that feed
// the scorer.
//
// Agents are never deleted, only transitioned between statuses by the
// periodic health check and by performance updates. The registry is safe for
// concurrent use: directory mutations serialize on one RWMutex while
// performance counters use per-agent locking only.
package registry
