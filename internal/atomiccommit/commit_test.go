// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package atomiccommit_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/ckptkit/internal/atomiccommit"
	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
	"github.com/ClusterCockpit/ckptkit/pkg/checkvalidate"
	"github.com/ClusterCockpit/ckptkit/pkg/manifest"
)

func writerFor(step int64, files map[string]string) atomiccommit.Writer {
	return func(stagingDir string) (*manifest.Manifest, error) {
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(stagingDir, name), []byte(content), 0o644); err != nil {
				return nil, err
			}
		}
		return manifest.Build(stagingDir, manifest.BuildOptions{
			JobID: "job", RunID: "run", Step: step, WorldSize: 1,
		})
	}
}

func TestCommitAtomicCrashCleanup(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "step-1")

	writer := func(stagingDir string) (*manifest.Manifest, error) {
		if err := os.WriteFile(filepath.Join(stagingDir, "file.bin"), []byte("hello"), 0o644); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("simulated writer failure")
	}

	_, err := atomiccommit.Commit(dest, writer, atomiccommit.DefaultOptions())
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "dest_dir must not exist after a failed commit")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "no .tmp-* staging sibling may remain after a failed commit")
}

func TestCommitPublishesLatestAndAppliesRetention(t *testing.T) {
	root := t.TempDir()

	opts := atomiccommit.DefaultOptions()
	opts.Retention = &atomiccommit.RetentionPolicy{KeepLast: 1}

	dest1 := filepath.Join(root, "step-1")
	_, err := atomiccommit.Commit(dest1, writerFor(1, map[string]string{"w.bin": "a"}), opts)
	require.NoError(t, err)

	dest2 := filepath.Join(root, "step-2")
	_, err = atomiccommit.Commit(dest2, writerFor(2, map[string]string{"w.bin": "ab"}), opts)
	require.NoError(t, err)

	_, statErr := os.Stat(dest1)
	assert.True(t, os.IsNotExist(statErr), "step-1 should have been pruned by keep_last=1")

	_, err = os.Stat(dest2)
	assert.NoError(t, err)

	target, ok := ckptfs.ReadLatestPointer(root)
	require.True(t, ok)
	assert.Equal(t, dest2, target)
}

func TestCommittedCheckpointValidatesFull(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "step-1")
	_, err := atomiccommit.Commit(dest, writerFor(1, map[string]string{"w.bin": "payload"}), atomiccommit.DefaultOptions())
	require.NoError(t, err)

	result := checkvalidate.Validate(dest, checkvalidate.Options{FullHash: true})
	assert.True(t, result.Valid)
}

func TestApplyRetentionKeepsPinnedEvenIfOld(t *testing.T) {
	root := t.TempDir()
	var committed []string
	for step := int64(1); step <= 3; step++ {
		dest := filepath.Join(root, fmt.Sprintf("step-%d", step))
		_, err := atomiccommit.Commit(dest, writerFor(step, map[string]string{"w.bin": "x"}), atomiccommit.Options{})
		require.NoError(t, err)
		committed = append(committed, dest)
	}

	atomiccommit.ApplyRetention(root, atomiccommit.RetentionPolicy{KeepLast: 1}, map[string]struct{}{committed[0]: {}})

	_, err := os.Stat(committed[0])
	assert.NoError(t, err, "pinned checkpoint must survive retention")
	_, err = os.Stat(committed[1])
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(committed[2])
	assert.NoError(t, err, "highest-step checkpoint must survive keep_last=1")
}
