// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/ckptkit/internal/config"
)

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	d := config.Defaults()
	assert.Equal(t, "unknown", d.JobID)
	assert.Equal(t, "unknown", d.RunID)
	assert.EqualValues(t, 65536, d.Hashing.SampleBytes)
	assert.Equal(t, 4, d.Hashing.Threads)
	assert.Equal(t, 3, d.Retention.KeepLast)
	assert.Equal(t, "ckptkit", d.Metrics.PushgatewayJob)
}

func TestLoadMissingPathReturnsDefaultsPlusOverrides(t *testing.T) {
	cfg, err := config.Load("", func(c *config.Config) {
		c.Root = "/data/checkpoints"
	})
	require.NoError(t, err)
	assert.Equal(t, "/data/checkpoints", cfg.Root)
	assert.Equal(t, 3, cfg.Retention.KeepLast)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
root: /mnt/checkpoints
job_id: training-job-42
retention:
  keep_last: 5
  keep_every: 10
hashing:
  sample_bytes: 131072
  full: true
metrics:
  textfile: /var/lib/node_exporter/ckptkit.prom
  labels:
    cluster: fritz
`), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/checkpoints", cfg.Root)
	assert.Equal(t, "training-job-42", cfg.JobID)
	assert.Equal(t, 5, cfg.Retention.KeepLast)
	assert.Equal(t, 10, cfg.Retention.KeepEvery)
	assert.True(t, cfg.Hashing.Full)
	assert.EqualValues(t, 131072, cfg.Hashing.SampleBytes)
	assert.Equal(t, "fritz", cfg.Metrics.Labels["cluster"])
	// RunID was untouched by the file, so the default must survive.
	assert.Equal(t, "unknown", cfg.RunID)
}

func TestLoadOverridesApplyAfterYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job_id: from-file\n"), 0o644))

	cfg, err := config.Load(path, func(c *config.Config) {
		c.JobID = "from-override"
	})
	require.NoError(t, err)
	assert.Equal(t, "from-override", cfg.JobID)
}

func TestLoadUnreadablePathErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), nil)
	assert.Error(t, err)
}
