package core

import "fmt"

// Priority orders tasks in the scheduling queue. Lower ordinal values are
// dispatched first; within one priority tier dispatch order is FIFO.
type Priority int

const (
	// PriorityCritical is dispatched before everything else.
	PriorityCritical Priority = iota + 1
	// PriorityHigh is dispatched before normal work.
	PriorityHigh
	// PriorityNormal is the default priority for submitted tasks.
	PriorityNormal
	// PriorityLow yields to normal work.
	PriorityLow
	// PriorityBackground runs only when nothing else is waiting.
	PriorityBackground
)

// String returns the canonical lower-case name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined priority tiers.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityBackground
}

// ScoreFactor biases agent scoring towards urgent tasks. The factors mirror
// the scheduling policy: critical work doubles an agent's score, background
// work halves it.
func (p Priority) ScoreFactor() float64 {
	switch p {
	case PriorityCritical:
		return 2.0
	case PriorityHigh:
		return 1.5
	case PriorityLow:
		return 0.7
	case PriorityBackground:
		return 0.5
	default:
		return 1.0
	}
}

// WaitFactor scales the wait-time estimate for a submission: urgent tiers jump
// the queue, so their expected wait shrinks accordingly.
func (p Priority) WaitFactor() float64 {
	switch p {
	case PriorityCritical:
		return 0.1
	case PriorityHigh:
		return 0.3
	case PriorityLow:
		return 2.0
	case PriorityBackground:
		return 5.0
	default:
		return 1.0
	}
}

// ParsePriority converts an untyped request value into a Priority. Unknown
// names are rejected with a ValidationError rather than silently defaulted;
// the empty string maps to PriorityNormal.
func ParsePriority(name string) (Priority, error) {
	switch name {
	case "":
		return PriorityNormal, nil
	case "critical":
		return PriorityCritical, nil
	case "high":
		return PriorityHigh, nil
	case "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "background":
		return PriorityBackground, nil
	default:
		return 0, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", name)}
	}
}
