// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/ckptkit/pkg/checkvalidate"
	"github.com/ClusterCockpit/ckptkit/pkg/metrics"
	"github.com/ClusterCockpit/ckptkit/pkg/resume"
)

func TestNewEmitterRegistersWithoutPanicking(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.NewEmitter(prometheus.Labels{"job_id": "j1"})
	})
}

func TestRecordValidationTalliesByReason(t *testing.T) {
	e := metrics.NewEmitter(nil)
	results := []checkvalidate.Result{
		{Valid: false, Issues: []checkvalidate.Issue{{Reason: checkvalidate.ReasonHashMismatch, Path: "a"}}},
		{Valid: false, Issues: []checkvalidate.Issue{{Reason: checkvalidate.ReasonHashMismatch, Path: "b"}}},
		{Valid: true},
	}
	e.RecordValidation(results)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, e.WriteTextfile(path))
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "checkpoint_validation_failures_total")
	assert.Contains(t, string(body), `reason="hash_mismatch"`)
}

func TestRecordResumePlanSetsGauges(t *testing.T) {
	e := metrics.NewEmitter(nil)
	e.RecordResumePlan(resume.Plan{
		Checkpoint: "/ckpts/step-7",
		Step:       7,
		Validation: checkvalidate.Result{Valid: true},
	})

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, e.WriteTextfile(path))
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "checkpoint_resume_selected_step 7")
	assert.Contains(t, string(body), `checkpoint="step-7"`)
}

func TestRecordCheckpointWriteUpdatesCounters(t *testing.T) {
	e := metrics.NewEmitter(nil)
	e.RecordCheckpointWrite(3, 2*time.Second, 1024)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, e.WriteTextfile(path))
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "checkpoint_last_success_step 3")
	assert.Contains(t, string(body), "checkpoint_write_bytes_total 1024")
}

func TestRecordDiskFreeOnMissingRootIsNoOp(t *testing.T) {
	e := metrics.NewEmitter(nil)
	assert.NotPanics(t, func() {
		e.RecordDiskFree(filepath.Join(t.TempDir(), "does-not-exist"))
	})
}

func TestWriteTextfileIsAtomic(t *testing.T) {
	e := metrics.NewEmitter(nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.prom")

	require.NoError(t, e.WriteTextfile(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no .ckptkit-metrics-* temp file may remain after a successful write")
	assert.Equal(t, "metrics.prom", entries[0].Name())
}
