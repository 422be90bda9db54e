// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics is the CORE's metrics sink: a value-typed Prometheus
// registry the checkpoint engine contributes gauge and counter
// observations to, with a textfile-collector writer and a Pushgateway
// pusher as the two external publication paths named in §6.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"

	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
	"github.com/ClusterCockpit/ckptkit/pkg/checkvalidate"
	"github.com/ClusterCockpit/ckptkit/pkg/resume"
)

var durationBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1200, 3600}

// Emitter owns a dedicated prometheus.Registry (never the global default
// registry, keeping the CORE free of process-wide state per §6/§9) and the
// fixed set of checkpoint-engine metrics.
type Emitter struct {
	registry *prometheus.Registry

	validationFailures *prometheus.CounterVec
	resumeSelectedStep prometheus.Gauge
	corruptDetected    *prometheus.GaugeVec
	directoryFreeBytes prometheus.Gauge
	lastSuccessStep    prometheus.Gauge
	lastSuccessTime    prometheus.Gauge
	lastDuration       prometheus.Histogram
	writeBytesTotal    prometheus.Counter
}

// NewEmitter builds an Emitter with baseLabels applied to every metric
// (e.g. job_id/run_id), mirroring the base-label behavior of the
// Python MetricsEmitter this is grounded on.
func NewEmitter(baseLabels prometheus.Labels) *Emitter {
	reg := prometheus.NewRegistry()
	e := &Emitter{
		registry: reg,
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "checkpoint_validation_failures_total",
			Help:        "Count of checkpoint validation issues, keyed by reason.",
			ConstLabels: baseLabels,
		}, []string{"reason"}),
		resumeSelectedStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "checkpoint_resume_selected_step",
			Help:        "Step of the checkpoint chosen by the last resume selection.",
			ConstLabels: baseLabels,
		}),
		corruptDetected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "checkpoint_corrupt_detected",
			Help:        "1 if the selected checkpoint failed validation, 0 otherwise.",
			ConstLabels: baseLabels,
		}, []string{"checkpoint"}),
		directoryFreeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "checkpoint_directory_free_bytes",
			Help:        "Free bytes on the filesystem backing the checkpoint root.",
			ConstLabels: baseLabels,
		}),
		lastSuccessStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "checkpoint_last_success_step",
			Help:        "Step of the most recently committed checkpoint.",
			ConstLabels: baseLabels,
		}),
		lastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "checkpoint_last_success_timestamp",
			Help:        "Unix timestamp of the most recently committed checkpoint.",
			ConstLabels: baseLabels,
		}),
		lastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "checkpoint_last_duration_seconds",
			Help:        "Distribution of checkpoint commit durations.",
			Buckets:     durationBuckets,
			ConstLabels: baseLabels,
		}),
		writeBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "checkpoint_write_bytes_total",
			Help:        "Total bytes written across all checkpoint commits.",
			ConstLabels: baseLabels,
		}),
	}
	reg.MustRegister(
		e.validationFailures,
		e.resumeSelectedStep,
		e.corruptDetected,
		e.directoryFreeBytes,
		e.lastSuccessStep,
		e.lastSuccessTime,
		e.lastDuration,
		e.writeBytesTotal,
	)
	return e
}

// RecordValidation tallies failure reasons across a batch of validation
// results, matching record_validation_metrics in the Python original.
func (e *Emitter) RecordValidation(results []checkvalidate.Result) {
	counts := map[checkvalidate.Reason]int{}
	for _, r := range results {
		if r.Valid {
			continue
		}
		for _, issue := range r.Issues {
			counts[issue.Reason]++
		}
	}
	for reason, count := range counts {
		e.validationFailures.WithLabelValues(string(reason)).Add(float64(count))
	}
}

// RecordResumePlan records the step chosen by a resume selection and
// whether that selection was actually valid.
func (e *Emitter) RecordResumePlan(plan resume.Plan) {
	e.resumeSelectedStep.Set(float64(plan.Step))
	value := 0.0
	if !plan.Validation.Valid {
		value = 1.0
	}
	e.corruptDetected.WithLabelValues(filepath.Base(plan.Checkpoint)).Set(value)
}

// RecordCheckpointWrite records a successful commit's step, duration, and
// total bytes written.
func (e *Emitter) RecordCheckpointWrite(step int64, duration time.Duration, totalBytes int64) {
	e.lastSuccessStep.Set(float64(step))
	e.lastSuccessTime.Set(float64(time.Now().Unix()))
	e.lastDuration.Observe(duration.Seconds())
	e.writeBytesTotal.Add(float64(totalBytes))
}

// RecordDiskFree records free space on the filesystem backing root.
func (e *Emitter) RecordDiskFree(root string) {
	free, err := ckptfs.DiskFreeBytes(root)
	if err != nil {
		return
	}
	e.directoryFreeBytes.Set(float64(free))
}

// WriteTextfile renders the registry in Prometheus text exposition format
// and atomically publishes it at path, for node_exporter's textfile
// collector. It writes a temp file in the same directory, fsyncs it, then
// renames it over path; the directory itself is not fsynced.
func (e *Emitter) WriteTextfile(path string) error {
	families, err := e.registry.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".ckptkit-metrics-%s", uuid.NewString()[:8]))
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("metrics: create textfile temp: %w", err)
	}
	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("metrics: encode: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("metrics: fsync textfile temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("metrics: close textfile temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("metrics: publish textfile: %w", err)
	}
	return nil
}

// PushGateway pushes the registry to a Prometheus Pushgateway under the
// given job name.
func (e *Emitter) PushGateway(url, job string) error {
	pusher := push.New(url, job).Gatherer(e.registry)
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
