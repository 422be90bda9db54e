// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ckptfs provides the filesystem primitives the CORE builds on:
// directory ensure, recursive fsync, the latest-pointer protocol, safe
// removal, and checkpoint enumeration.
package ckptfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/ClusterCockpit/ckptkit/pkg/log"
	"github.com/ClusterCockpit/ckptkit/pkg/manifest"
)

// LatestLinkName and LatestJSONName are the two representations of the
// "latest" pointer; readers must tolerate either and prefer the symlink
// when both exist.
const (
	LatestLinkName = "latest"
	LatestJSONName = "latest.json"
	CorruptDirName = "corrupt"
)

// EnsureDir idempotently creates path and any missing parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("ckptfs: ensure dir %s: %w", path, err)
	}
	return nil
}

// FsyncDir opens path as a directory handle and fsyncs it. Fsyncing a
// directory is what makes renames and unlinks within it durable.
func FsyncDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ckptfs: open dir %s: %w", path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("ckptfs: fsync dir %s: %w", path, err)
	}
	return nil
}

// FsyncTree fsyncs every regular file under root, then every directory
// (including root itself), deepest first, so each directory handle is
// fsynced only after all files and subdirectories beneath it.
func FsyncTree(root string) error {
	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("ckptfs: open %s: %w", path, err)
		}
		defer f.Close()
		if err := f.Sync(); err != nil {
			return fmt.Errorf("ckptfs: fsync %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Deepest directories first so a directory's own fsync observes all of
	// its children's fsyncs having already happened.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		if err := FsyncDir(d); err != nil {
			return err
		}
	}
	return nil
}

// IsCheckpointDir reports whether child is a non-symlink directory
// containing manifest.json — the sole criterion for "is a checkpoint".
func IsCheckpointDir(child string) bool {
	info, err := os.Lstat(child)
	if err != nil || info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		return false
	}
	_, err = os.Stat(manifest.Path(child))
	return err == nil
}

// ListCheckpoints enumerates checkpoint subdirectories of root in
// lexicographic path order. Callers that need step order must sort
// themselves (see pkg/resume).
func ListCheckpoints(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ckptfs: read dir %s: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		child := filepath.Join(root, e.Name())
		if IsCheckpointDir(child) {
			out = append(out, child)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SafeRemoveCheckpoint recursively removes path. It is a no-op if path
// does not exist. The caller is responsible for knowing it is safe to
// delete (retention and the commit's staging cleanup are the only CORE
// callers).
func SafeRemoveCheckpoint(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("ckptfs: remove %s: %w", path, err)
	}
	return nil
}

func tmpName(prefix string) string {
	return fmt.Sprintf(".%s.%s", prefix, uuid.NewString()[:8])
}

// UpdateLatestPointer publishes target as the current checkpoint under
// root. It first tries a symlink named "latest" (created under a unique
// temp name and renamed over the real name so the update is atomic), and
// falls back to a "latest.json" file with {"latest": "<absolute path>"}
// when the filesystem does not support symlinks. Both paths use the
// temp-file-plus-rename pattern; the JSON fallback fsyncs before the
// rename.
func UpdateLatestPointer(root, target string) error {
	link := filepath.Join(root, LatestLinkName)
	tmpLink := filepath.Join(root, tmpName("latest"))

	symlinkErr := os.Symlink(filepath.Base(target), tmpLink)
	if symlinkErr == nil {
		if err := os.Rename(tmpLink, link); err != nil {
			os.Remove(tmpLink)
			return fmt.Errorf("ckptfs: publish latest symlink: %w", err)
		}
		return nil
	}
	os.Remove(tmpLink)
	log.Debugf("ckptfs: symlink unsupported (%v), falling back to latest.json", symlinkErr)

	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("ckptfs: absolute path for %s: %w", target, err)
	}
	payload, err := json.Marshal(map[string]string{"latest": abs})
	if err != nil {
		return fmt.Errorf("ckptfs: marshal latest.json: %w", err)
	}

	tmpFile := filepath.Join(root, tmpName("latest_json"))
	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("ckptfs: create latest.json temp: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("ckptfs: write latest.json temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("ckptfs: fsync latest.json temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("ckptfs: close latest.json temp: %w", err)
	}
	if err := os.Rename(tmpFile, filepath.Join(root, LatestJSONName)); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("ckptfs: publish latest.json: %w", err)
	}
	return nil
}

// ReadLatestPointer resolves the current "latest" pointer under root,
// preferring the symlink when both representations exist. A pointer whose
// target no longer exists is treated as absent, per spec — callers must
// not distinguish "no pointer" from "stale pointer".
func ReadLatestPointer(root string) (string, bool) {
	link := filepath.Join(root, LatestLinkName)
	if info, err := os.Lstat(link); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(link)
		if err == nil {
			if !filepath.IsAbs(target) {
				target = filepath.Join(root, target)
			}
			if _, err := os.Stat(target); err == nil {
				return target, true
			}
		}
	}

	jsonPath := filepath.Join(root, LatestJSONName)
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", false
	}
	var payload struct {
		Latest string `json:"latest"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Latest == "" {
		return "", false
	}
	if _, err := os.Stat(payload.Latest); err != nil {
		return "", false
	}
	return payload.Latest, true
}
