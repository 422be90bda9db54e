// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package quarantine_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
	"github.com/ClusterCockpit/ckptkit/internal/quarantine"
)

func TestQuarantineMovesAndWritesReason(t *testing.T) {
	root := t.TempDir()
	ckptDir := filepath.Join(root, "step-1")
	require.NoError(t, os.MkdirAll(ckptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ckptDir, "weights.bin"), []byte("x"), 0o644))

	newPath, err := quarantine.Quarantine(ckptDir, root, "sha256 mismatch on weights.bin")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(newPath, filepath.Join(root, ckptfs.CorruptDirName)))
	assert.True(t, strings.HasPrefix(filepath.Base(newPath), "step-1-"))

	_, err = os.Stat(ckptDir)
	assert.True(t, os.IsNotExist(err), "original checkpoint path must no longer exist")

	reasonBytes, err := os.ReadFile(filepath.Join(newPath, "reason.txt"))
	require.NoError(t, err)
	reason := string(reasonBytes)
	assert.Contains(t, reason, "sha256 mismatch on weights.bin")
	assert.Contains(t, reason, "Z ")

	_, err = os.Stat(filepath.Join(newPath, "weights.bin"))
	assert.NoError(t, err, "original checkpoint contents must survive the move")
}

func TestQuarantineMissingSourceFails(t *testing.T) {
	root := t.TempDir()
	_, err := quarantine.Quarantine(filepath.Join(root, "does-not-exist"), root, "missing")
	assert.Error(t, err)
}

func TestQuarantineTwiceProducesDistinctPaths(t *testing.T) {
	root := t.TempDir()
	dir1 := filepath.Join(root, "step-1")
	require.NoError(t, os.MkdirAll(dir1, 0o755))
	dir2 := filepath.Join(root, "step-2")
	require.NoError(t, os.MkdirAll(dir2, 0o755))

	p1, err := quarantine.Quarantine(dir1, root, "reason one")
	require.NoError(t, err)
	p2, err := quarantine.Quarantine(dir2, root, "reason two")
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}
