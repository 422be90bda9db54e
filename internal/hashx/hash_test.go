// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package hashx_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/ckptkit/internal/hashx"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestHashFileFullModeIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.bin", []byte("hello world"))

	d1, err := hashx.HashFile(path, 0)
	require.NoError(t, err)
	d2, err := hashx.HashFile(path, 0)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestHashFileSampledIsSizeSensitive(t *testing.T) {
	dir := t.TempDir()
	base := make([]byte, 1024)
	path := writeFile(t, dir, "a.bin", base)

	before, err := hashx.HashFile(path, 64)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, append(base, 0), 0o644))
	after, err := hashx.HashFile(path, 64)
	require.NoError(t, err)

	assert.NotEqual(t, before, after, "appending a zero byte must change the sampled digest")
}

func TestHashFileSmallFileUsesFullModeEvenWhenSampled(t *testing.T) {
	dir := t.TempDir()
	content := []byte("tiny")
	path := writeFile(t, dir, "a.bin", content)

	sampled, err := hashx.HashFile(path, 65536)
	require.NoError(t, err)
	full, err := hashx.HashFile(path, 0)
	require.NoError(t, err)

	assert.Equal(t, full, sampled, "2*sample_bytes >= size must fall back to full mode")
}

func TestBatchHashParallelAndErrors(t *testing.T) {
	dir := t.TempDir()
	p1 := writeFile(t, dir, "one.bin", []byte("one"))
	p2 := writeFile(t, dir, "two.bin", []byte("two"))

	digests, err := hashx.BatchHash([]string{p1, p2}, hashx.Options{Parallelism: 2})
	require.NoError(t, err)
	assert.Len(t, digests, 2)
	assert.NotEqual(t, digests[p1], digests[p2])

	missing := filepath.Join(dir, "missing.bin")
	_, err = hashx.BatchHash([]string{p1, missing}, hashx.Options{})
	require.Error(t, err)
	var hashErr *hashx.HashError
	require.ErrorAs(t, err, &hashErr)
	assert.Equal(t, missing, hashErr.Path)
}
