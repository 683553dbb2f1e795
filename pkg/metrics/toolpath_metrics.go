// Toolpath metrics definitions
//
// Defines the metrics for G-code ingestion, toolpath construction and the
// preview server. All recording methods are no-ops on a nil receiver so
// library callers can run without metrics.
//
// Copyright (C) 2026  gcode-toolpath authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"time"
)

// ToolpathMetrics holds all toolpath metrics
type ToolpathMetrics struct {
	// Ingestion
	CommandsTotal *Counter
	TokensDropped *Counter
	ChunkSeconds  *Histogram

	// Toolpath construction
	PathsCommitted      *Counter
	ArcSegments         *Counter
	Layers              *Gauge
	NonPlanarJobs       *Counter
	UnitChangesRejected *Counter

	// Server
	RequestsTotal *Counter
	JobsActive    *Gauge

	// Runtime
	GoGoroutines *Gauge
	GoMemoryHeap *Gauge

	registry *Registry
}

// NewToolpathMetrics creates and registers all toolpath metrics
func NewToolpathMetrics() *ToolpathMetrics {
	tm := &ToolpathMetrics{registry: NewRegistry()}

	tm.CommandsTotal = NewCounter("gcode_commands_total",
		"Parsed G-code commands by kind")
	tm.TokensDropped = NewCounter("gcode_tokens_dropped_total",
		"Parameter tokens dropped as unparsable or not allowed for the opcode")
	tm.ChunkSeconds = NewHistogram("toolpath_chunk_seconds",
		"Time spent executing one chunk of commands", DefaultBuckets())

	tm.PathsCommitted = NewCounter("toolpath_paths_committed_total",
		"Paths committed by travel type")
	tm.ArcSegments = NewCounter("toolpath_arc_segments_total",
		"Line segments emitted by arc interpolation")
	tm.Layers = NewGauge("toolpath_layers",
		"Current layer count per job")
	tm.NonPlanarJobs = NewCounter("toolpath_nonplanar_jobs_total",
		"Jobs whose layering was disabled by a non-planar extrusion")
	tm.UnitChangesRejected = NewCounter("toolpath_unit_changes_rejected_total",
		"G20/G21 commands ignored because motion had begun")

	tm.RequestsTotal = NewCounter("server_requests_total",
		"Preview server requests by method")
	tm.JobsActive = NewGauge("server_jobs_active",
		"Jobs held by the preview server")

	tm.GoGoroutines = NewGauge("toolpath_go_goroutines",
		"Number of goroutines")
	tm.GoMemoryHeap = NewGauge("toolpath_go_memory_heap_bytes",
		"Heap bytes allocated")

	for _, m := range []Metric{
		tm.CommandsTotal, tm.TokensDropped, tm.ChunkSeconds,
		tm.PathsCommitted, tm.ArcSegments, tm.Layers,
		tm.NonPlanarJobs, tm.UnitChangesRejected,
		tm.RequestsTotal, tm.JobsActive,
		tm.GoGoroutines, tm.GoMemoryHeap,
	} {
		tm.registry.MustRegister(m)
	}
	return tm
}

// RecordCommands counts n parsed commands of the given kind
func (tm *ToolpathMetrics) RecordCommands(kind string, n int) {
	if tm == nil || n <= 0 {
		return
	}
	tm.CommandsTotal.Add(Labels{"kind": kind}, uint64(n))
}

// RecordDroppedTokens counts dropped parameter tokens
func (tm *ToolpathMetrics) RecordDroppedTokens(n int) {
	if tm == nil || n <= 0 {
		return
	}
	tm.TokensDropped.Add(nil, uint64(n))
}

// ObserveChunk records how long one Execute call took
func (tm *ToolpathMetrics) ObserveChunk(d time.Duration) {
	if tm == nil {
		return
	}
	tm.ChunkSeconds.Observe(nil, d.Seconds())
}

// ChunkTimer starts timing one Execute call; call the result when done
func (tm *ToolpathMetrics) ChunkTimer() func() {
	if tm == nil {
		return func() {}
	}
	return tm.ChunkSeconds.Timer(nil)
}

// RecordPathCommitted counts a committed path of the given travel type
func (tm *ToolpathMetrics) RecordPathCommitted(travelType string) {
	if tm == nil {
		return
	}
	tm.PathsCommitted.Inc(Labels{"type": travelType})
}

// RecordArcSegments counts segments emitted for one arc
func (tm *ToolpathMetrics) RecordArcSegments(n int) {
	if tm == nil || n <= 0 {
		return
	}
	tm.ArcSegments.Add(nil, uint64(n))
}

// SetLayers publishes a job's layer count
func (tm *ToolpathMetrics) SetLayers(job string, n int) {
	if tm == nil || job == "" {
		return
	}
	tm.Layers.Set(Labels{"job": job}, float64(n))
}

// ForgetJob drops per-job series
func (tm *ToolpathMetrics) ForgetJob(job string) {
	if tm == nil {
		return
	}
	tm.Layers.Delete(Labels{"job": job})
}

// RecordNonPlanar counts a job that lost layering
func (tm *ToolpathMetrics) RecordNonPlanar() {
	if tm == nil {
		return
	}
	tm.NonPlanarJobs.Inc(nil)
}

// RecordUnitChangeRejected counts an ignored G20/G21
func (tm *ToolpathMetrics) RecordUnitChangeRejected() {
	if tm == nil {
		return
	}
	tm.UnitChangesRejected.Inc(nil)
}

// RecordRequest counts a server request by method name
func (tm *ToolpathMetrics) RecordRequest(method string) {
	if tm == nil {
		return
	}
	tm.RequestsTotal.Inc(Labels{"method": method})
}

// SetJobsActive publishes the number of server jobs
func (tm *ToolpathMetrics) SetJobsActive(n int) {
	if tm == nil {
		return
	}
	tm.JobsActive.Set(nil, float64(n))
}

// UpdateSystemMetrics updates Go runtime metrics
func (tm *ToolpathMetrics) UpdateSystemMetrics() {
	if tm == nil {
		return
	}
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	tm.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	tm.GoMemoryHeap.Set(nil, float64(m.HeapAlloc))
}

// Gather returns all metrics in Prometheus text format
func (tm *ToolpathMetrics) Gather() string {
	tm.UpdateSystemMetrics()
	return tm.registry.Gather()
}

// Registry returns the internal registry
func (tm *ToolpathMetrics) Registry() *Registry {
	return tm.registry
}
