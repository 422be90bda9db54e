// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package resume_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
	"github.com/ClusterCockpit/ckptkit/pkg/manifest"
	"github.com/ClusterCockpit/ckptkit/pkg/resume"
)

func commitCheckpoint(t *testing.T, root string, step int64, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, "step-"+itoa(step))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	m, err := manifest.Build(dir, manifest.BuildOptions{JobID: "j", RunID: "r", Step: step, WorldSize: 1})
	require.NoError(t, err)
	require.NoError(t, manifest.Write(manifest.Path(dir), m))
	return dir
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestSelectLatestValidFallsBackPastTamperedManifest(t *testing.T) {
	root := t.TempDir()
	commitCheckpoint(t, root, 1, map[string]string{"w.bin": "a"})
	dir2 := commitCheckpoint(t, root, 2, map[string]string{"w.bin": "b"})

	m2, err := manifest.Read(manifest.Path(dir2))
	require.NoError(t, err)
	m2.Files[0].SHA256 = "deadbeef"
	require.NoError(t, manifest.Write(manifest.Path(dir2), m2))

	plan, err := resume.Select(root, resume.Options{Policy: resume.PolicyLatestValid})
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.Step)
	assert.True(t, plan.Validation.Valid)
}

func TestSelectBestReturnsNewestEvenIfInvalid(t *testing.T) {
	root := t.TempDir()
	dir := commitCheckpoint(t, root, 1, map[string]string{"w.bin": "a"})
	m, err := manifest.Read(manifest.Path(dir))
	require.NoError(t, err)
	m.Files[0].SHA256 = "deadbeef"
	require.NoError(t, manifest.Write(manifest.Path(dir), m))

	plan, err := resume.Select(root, resume.Options{Policy: resume.PolicyBest})
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.Step)
	assert.False(t, plan.Validation.Valid)
}

func TestSelectNewestBeforeRequiresBeforeStep(t *testing.T) {
	root := t.TempDir()
	commitCheckpoint(t, root, 1, map[string]string{"w.bin": "a"})

	_, err := resume.Select(root, resume.Options{Policy: resume.PolicyNewestBefore})
	assert.Error(t, err)
}

func TestSelectNewestBeforePicksBoundedStep(t *testing.T) {
	root := t.TempDir()
	commitCheckpoint(t, root, 1, map[string]string{"w.bin": "a"})
	commitCheckpoint(t, root, 5, map[string]string{"w.bin": "b"})
	before := int64(3)

	plan, err := resume.Select(root, resume.Options{Policy: resume.PolicyNewestBefore, BeforeStep: &before})
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.Step)
}

func TestSelectLastKnownGoodPrefersLatestPointer(t *testing.T) {
	root := t.TempDir()
	dir1 := commitCheckpoint(t, root, 1, map[string]string{"w.bin": "a"})
	commitCheckpoint(t, root, 2, map[string]string{"w.bin": "b"})

	require.NoError(t, ckptfs.UpdateLatestPointer(root, dir1))

	plan, err := resume.Select(root, resume.Options{Policy: resume.PolicyLastKnownGood})
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.Step)
	assert.Contains(t, plan.Reason, "latest pointer")
}

func TestSelectIsIdempotent(t *testing.T) {
	root := t.TempDir()
	commitCheckpoint(t, root, 1, map[string]string{"w.bin": "a"})
	commitCheckpoint(t, root, 2, map[string]string{"w.bin": "b"})

	p1, err := resume.Select(root, resume.Options{Policy: resume.PolicyLatestValid})
	require.NoError(t, err)
	p2, err := resume.Select(root, resume.Options{Policy: resume.PolicyLatestValid})
	require.NoError(t, err)

	assert.Equal(t, p1.Checkpoint, p2.Checkpoint)
	assert.Equal(t, p1.Step, p2.Step)
}

func TestSelectEmptyRootErrors(t *testing.T) {
	root := t.TempDir()
	_, err := resume.Select(root, resume.Options{Policy: resume.PolicyLatestValid})
	assert.Error(t, err)
}
