// Package metrics provides a small process-local metrics registry for
// counters and gauges, with sorted snapshots and Prometheus text rendering.
// The orchestrator's metrics aggregator drives it; exposing the rendered
// output over HTTP is an external collaborator's concern.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Point is one named metric value with optional labels.
type Point struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Snapshot is a point-in-time copy of all registered metrics.
type Snapshot struct {
	Counters []Point `json:"counters"`
	Gauges   []Point `json:"gauges"`
}

type entry struct {
	name   string
	labels map[string]string
	value  float64
}

// Registry accumulates counters and gauges. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.Mutex
	counters map[string]entry
	gauges   map[string]entry
}

// NewRegistry constructs an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]entry),
		gauges:   make(map[string]entry),
	}
}

// IncCounter adds delta to the named counter.
func (r *Registry) IncCounter(name string, labels map[string]string, delta float64) {
	if delta == 0 {
		return
	}
	k, lcopy := key(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.counters[k]
	if e.name == "" {
		e = entry{name: name, labels: lcopy}
	}
	e.value += delta
	r.counters[k] = e
}

// SetGauge sets the named gauge to value.
func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	k, lcopy := key(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[k] = entry{name: name, labels: lcopy, value: value}
}

// Counter returns the current value of the named counter (zero if absent).
func (r *Registry) Counter(name string, labels map[string]string) float64 {
	k, _ := key(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[k].value
}

// Gauge returns the current value of the named gauge (zero if absent).
func (r *Registry) Gauge(name string, labels map[string]string) float64 {
	k, _ := key(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[k].value
}

// Take returns a sorted snapshot of all metrics.
func (r *Registry) Take() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Snapshot{
		Counters: make([]Point, 0, len(r.counters)),
		Gauges:   make([]Point, 0, len(r.gauges)),
	}
	for _, e := range r.counters {
		out.Counters = append(out.Counters, Point{Name: e.name, Labels: cloneLabels(e.labels), Value: e.value})
	}
	for _, e := range r.gauges {
		out.Gauges = append(out.Gauges, Point{Name: e.name, Labels: cloneLabels(e.labels), Value: e.value})
	}
	sort.Slice(out.Counters, func(i, j int) bool { return out.Counters[i].Name < out.Counters[j].Name })
	sort.Slice(out.Gauges, func(i, j int) bool { return out.Gauges[i].Name < out.Gauges[j].Name })
	return out
}

// Reset clears all metrics.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]entry)
	r.gauges = make(map[string]entry)
}

// RenderPrometheus renders all metrics in the Prometheus text exposition
// format, one sorted line per series.
func (r *Registry) RenderPrometheus() string {
	s := r.Take()
	lines := make([]string, 0, len(s.Counters)+len(s.Gauges))
	for _, p := range s.Counters {
		lines = append(lines, formatLine(sanitizeName(p.Name), p.Labels, p.Value))
	}
	for _, p := range s.Gauges {
		lines = append(lines, formatLine(sanitizeName(p.Name), p.Labels, p.Value))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func key(name string, labels map[string]string) (string, map[string]string) {
	if len(labels) == 0 {
		return name, nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, name)
	lcopy := make(map[string]string, len(labels))
	for _, k := range keys {
		v := labels[k]
		lcopy[k] = v
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "|"), lcopy
}

func cloneLabels(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "taskmesh_metric"
	}
	out := make([]rune, 0, len(name))
	for i, r := range name {
		valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || (r >= '0' && r <= '9' && i > 0)
		if valid {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func formatLine(name string, labels map[string]string, value float64) string {
	if len(labels) == 0 {
		return name + " " + strconv.FormatFloat(value, 'f', -1, 64)
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", sanitizeName(k), labels[k]))
	}
	return fmt.Sprintf("%s{%s} %s", name, strings.Join(parts, ","), strconv.FormatFloat(value, 'f', -1, 64))
}
