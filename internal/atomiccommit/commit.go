// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package atomiccommit implements crash-safe publication of checkpoint
// directories: stage in a temp sibling, fsync, rename, then publish the
// latest pointer and apply retention.
package atomiccommit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
	"github.com/ClusterCockpit/ckptkit/pkg/log"
	"github.com/ClusterCockpit/ckptkit/pkg/manifest"
)

// Writer populates an empty staging directory and returns a manifest
// describing what it wrote. It must not write outside the given directory.
// This is the single place the CORE inverts control to caller code; a
// Writer that fails aborts the whole commit and the staging directory is
// removed.
type Writer func(stagingDir string) (*manifest.Manifest, error)

// RetentionPolicy controls which checkpoints survive apply-retention: the
// keep_last highest-step checkpoints, any checkpoint whose step is
// divisible by KeepEvery, plus any explicitly pinned paths.
type RetentionPolicy struct {
	KeepLast  int `yaml:"keep_last"`
	KeepEvery int `yaml:"keep_every"`
}

// Options configures Commit.
type Options struct {
	UpdateLatest bool
	Retention    *RetentionPolicy
}

// DefaultOptions matches the spec's commit(..., update_latest=true,
// retention=None) default.
func DefaultOptions() Options {
	return Options{UpdateLatest: true}
}

// Commit atomically publishes destDir: it stages writer's output in a
// uniquely named temp sibling, fsyncs the whole staged tree plus its
// parent, renames the staging directory onto destDir, fsyncs the parent
// again to make the rename durable, then (best-effort) publishes the
// latest pointer and applies retention.
//
// If writer fails, or any step before the rename fails, destDir never
// appears and the staging directory is removed before Commit returns.
// Latest-pointer and retention failures are swallowed; see §7.
func Commit(destDir string, writer Writer, opts Options) (*manifest.Manifest, error) {
	parent := filepath.Dir(destDir)
	if err := ckptfs.EnsureDir(parent); err != nil {
		return nil, err
	}

	stagingDir := filepath.Join(parent, fmt.Sprintf("%s.tmp-%s", filepath.Base(destDir), uuid.NewString()[:8]))
	if err := ckptfs.EnsureDir(stagingDir); err != nil {
		return nil, err
	}

	m, err := commitStaged(stagingDir, destDir, parent, writer)
	if err != nil {
		if rmErr := ckptfs.SafeRemoveCheckpoint(stagingDir); rmErr != nil {
			log.Warnf("atomiccommit: cleanup of failed staging dir %s: %v", stagingDir, rmErr)
		}
		return nil, err
	}

	if opts.UpdateLatest {
		if err := ckptfs.UpdateLatestPointer(parent, destDir); err != nil {
			log.Warnf("atomiccommit: publish latest pointer for %s: %v", destDir, err)
		}
	}
	if opts.Retention != nil {
		ApplyRetention(parent, *opts.Retention, map[string]struct{}{destDir: {}})
	}

	log.Event("checkpoint_written", "info", map[string]any{
		"checkpoint_path": destDir,
		"step":            m.Step,
		"job_id":          m.JobID,
		"run_id":          m.RunID,
	})
	return m, nil
}

// commitStaged runs steps 3-5 of the commit protocol: invoke the writer,
// fsync the staged tree, rename it onto destDir, fsync the parent again.
func commitStaged(stagingDir, destDir, parent string, writer Writer) (*manifest.Manifest, error) {
	m, err := writer(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("atomiccommit: writer failed: %w", err)
	}

	manifestPath := manifest.Path(stagingDir)
	if _, statErr := os.Stat(manifestPath); statErr != nil {
		if err := manifest.Write(manifestPath, m); err != nil {
			return nil, fmt.Errorf("atomiccommit: persist manifest: %w", err)
		}
	}

	if err := ckptfs.FsyncTree(stagingDir); err != nil {
		return nil, fmt.Errorf("atomiccommit: fsync staging tree: %w", err)
	}
	if err := ckptfs.FsyncDir(parent); err != nil {
		return nil, fmt.Errorf("atomiccommit: fsync parent before rename: %w", err)
	}

	if err := os.Rename(stagingDir, destDir); err != nil {
		return nil, fmt.Errorf("atomiccommit: rename staging to %s: %w", destDir, err)
	}
	if err := ckptfs.FsyncDir(parent); err != nil {
		return nil, fmt.Errorf("atomiccommit: fsync parent after rename: %w", err)
	}
	return m, nil
}
