// Package profiling is a lightweight per-frame CPU profiler for the render
// passes.
package profiling

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Profiler accumulates named durations for the current frame.
type Profiler struct {
	mu     sync.Mutex
	totals map[string]time.Duration
}

// New returns an empty profiler.
func New() *Profiler {
	return &Profiler{totals: make(map[string]time.Duration)}
}

var std = New()

// Default returns the process-wide profiler used by the package functions.
func Default() *Profiler { return std }

// Track returns a stop function that records the elapsed time under name.
// Usage: defer p.Track("stage.shadowmap")()
func (p *Profiler) Track(name string) func() {
	start := time.Now()
	return func() {
		p.Add(name, time.Since(start))
	}
}

// Add records d under name.
func (p *Profiler) Add(name string, d time.Duration) {
	p.mu.Lock()
	p.totals[name] += d
	p.mu.Unlock()
}

// ResetFrame clears the current totals. Call at the start of each frame.
func (p *Profiler) ResetFrame() {
	p.mu.Lock()
	clear(p.totals)
	p.mu.Unlock()
}

// Snapshot returns a copy of the current totals.
func (p *Profiler) Snapshot() map[string]time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.totals)
}

// TopN formats the n largest totals, largest first.
// Example: "stage.shadowmap:4.2ms, stage.lighting:2.1ms"
func (p *Profiler) TopN(n int) string {
	type pair struct {
		name string
		dur  time.Duration
	}
	ss := p.Snapshot()
	list := make([]pair, 0, len(ss))
	for k, v := range ss {
		list = append(list, pair{k, v})
	}
	slices.SortFunc(list, func(a, b pair) int {
		if c := cmp.Compare(b.dur, a.dur); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	n = min(n, len(list))
	parts := make([]string, 0, n)
	for _, e := range list[:n] {
		parts = append(parts, e.name+":"+formatMs(e.dur))
	}
	return strings.Join(parts, ", ")
}

func formatMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	s := fmt.Sprintf("%.1f", ms)
	return strings.TrimSuffix(s, ".0") + "ms"
}

func Track(name string) func()           { return std.Track(name) }
func Add(name string, d time.Duration)   { std.Add(name, d) }
func ResetFrame()                        { std.ResetFrame() }
func Snapshot() map[string]time.Duration { return std.Snapshot() }
func TopN(n int) string                  { return std.TopN(n) }
