// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package manifest implements the self-describing, content-hashed record
// that anchors checkpoint validation and split-brain detection.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ClusterCockpit/ckptkit/internal/hashx"
	"github.com/ClusterCockpit/ckptkit/pkg/log"
)

// Name is the filename a checkpoint's manifest is always stored under.
const Name = "manifest.json"

// Version is the current manifest schema version.
const Version = "1"

// FileEntry is one (relative_path, size, sha256) triple describing a file
// written as part of a checkpoint.
type FileEntry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest is the structured record written alongside every checkpoint's
// files. Files is always kept sorted by Path ascending so that two
// manifests describing the same content serialize byte-identically.
type Manifest struct {
	Version   string                 `json:"version"`
	CreatedAt float64                `json:"created_at"`
	JobID     string                 `json:"job_id"`
	RunID     string                 `json:"run_id"`
	Step      int64                  `json:"step"`
	Host      string                 `json:"host"`
	WorldSize int                    `json:"world_size"`
	Files     []FileEntry            `json:"files"`
	Framework *string                `json:"framework"`
	Precision *string                `json:"precision"`
	ModelName *string                `json:"model_name"`
	Extra     map[string]interface{} `json:"extra"`
}

// Path returns the manifest.json path for a checkpoint directory.
func Path(checkpointDir string) string {
	return filepath.Join(checkpointDir, Name)
}

// Write serializes m as UTF-8 JSON with sorted keys, 2-space indent and a
// trailing newline, then writes and fsyncs it, matching the wire contract in
// the on-disk layout §6.
func Write(path string, m *Manifest) error {
	raw, err := marshalSorted(m)
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	raw = append(raw, '\n')

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("manifest: create %s: %w", path, err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("manifest: fsync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("manifest: close %s: %w", path, err)
	}
	return nil
}

// Read loads and schema-validates a manifest.json file.
func Read(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// knownManifestFields are the top-level keys Manifest's struct tags decode
// on their own; anything else found in raw bytes is forward-compatible
// data Parse must preserve rather than silently drop.
var knownManifestFields = map[string]struct{}{
	"version": {}, "created_at": {}, "job_id": {}, "run_id": {}, "step": {},
	"host": {}, "world_size": {}, "files": {}, "framework": {}, "precision": {},
	"model_name": {}, "extra": {},
}

// Parse validates the schema of raw manifest bytes and decodes them. Any
// top-level property the schema permits but Manifest has no field for is
// folded into Extra alongside whatever the "extra" object itself carried,
// so a newer writer's additions survive a round trip through an older
// reader instead of being dropped on decode.
func Parse(raw []byte) (*Manifest, error) {
	if err := ValidateSchema(raw); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("manifest: decode for unknown fields: %w", err)
	}
	if m.Extra == nil {
		m.Extra = map[string]interface{}{}
	}
	for k, v := range generic {
		if _, known := knownManifestFields[k]; known {
			continue
		}
		m.Extra[k] = v
	}

	sortFiles(m.Files)
	return &m, nil
}

// marshalSorted renders m with sorted object keys by round-tripping it
// through a generic map, since encoding/json emits struct fields in
// declaration order but map keys in sorted order.
func marshalSorted(m *Manifest) ([]byte, error) {
	clone := *m
	sortFiles(clone.Files)
	if clone.Extra == nil {
		clone.Extra = map[string]interface{}{}
	}

	// encoding/json marshals struct fields in declaration order, not sorted
	// key order; round-trip through a generic map so object keys come out
	// alphabetically, matching the `sort_keys=True` contract in §3.
	var generic map[string]interface{}
	plain, err := json.Marshal(clone)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plain, &generic); err != nil {
		return nil, err
	}

	// encoding/json already renders map[string]any keys in sorted order,
	// matching the `sort_keys=True` contract in §3.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sortFiles(files []FileEntry) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// BuildOptions configures Build.
type BuildOptions struct {
	JobID       string
	RunID       string
	Step        int64
	WorldSize   int
	Framework   *string
	Precision   *string
	ModelName   *string
	Extra       map[string]interface{}
	SampleBytes int64 // 0 means hashx.DefaultSampleBytes unless Full is set
	Full        bool
	Threads     int
	Ignore      map[string]struct{}
	Now         func() float64
	Hostname    func() (string, error)
}

func defaultNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Build walks dir, hashing every regular file except manifest.json and any
// caller-supplied ignore names, and returns a fully populated Manifest. It
// is the blessed builder writers should use when they want the returned
// manifest to be provably consistent with what they wrote — see
// internal/atomiccommit's writer contract.
func Build(dir string, opts BuildOptions) (*Manifest, error) {
	ignore := map[string]struct{}{Name: {}}
	for k := range opts.Ignore {
		ignore[k] = struct{}{}
	}

	var relPaths []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, skip := ignore[filepath.Base(rel)]; skip {
			return nil
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: walk %s: %w", dir, err)
	}

	absPaths := make([]string, len(relPaths))
	for i, rel := range relPaths {
		absPaths[i] = filepath.Join(dir, filepath.FromSlash(rel))
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = hashx.DefaultParallelism
	}
	sampleBytes := opts.SampleBytes
	if opts.Full {
		sampleBytes = 0
	} else if sampleBytes == 0 {
		sampleBytes = hashx.DefaultSampleBytes
	}

	digests, err := hashx.BatchHash(absPaths, hashx.Options{SampleBytes: sampleBytes, Parallelism: threads})
	if err != nil {
		return nil, fmt.Errorf("manifest: hashing checkpoint contents: %w", err)
	}

	entries := make([]FileEntry, 0, len(relPaths))
	for i, rel := range relPaths {
		fi, err := os.Stat(absPaths[i])
		if err != nil {
			return nil, fmt.Errorf("manifest: stat %s: %w", rel, err)
		}
		entries = append(entries, FileEntry{
			Path:   rel,
			Size:   fi.Size(),
			SHA256: digests[absPaths[i]],
		})
	}
	sortFiles(entries)

	now := opts.Now
	if now == nil {
		now = defaultNow
	}
	hostname := opts.Hostname
	if hostname == nil {
		hostname = os.Hostname
	}
	host, err := hostname()
	if err != nil {
		log.Warnf("manifest: could not determine hostname: %v", err)
		host = "unknown"
	}

	extra := opts.Extra
	if extra == nil {
		extra = map[string]interface{}{}
	}

	return &Manifest{
		Version:   Version,
		CreatedAt: now(),
		JobID:     opts.JobID,
		RunID:     opts.RunID,
		Step:      opts.Step,
		Host:      host,
		WorldSize: opts.WorldSize,
		Files:     entries,
		Framework: opts.Framework,
		Precision: opts.Precision,
		ModelName: opts.ModelName,
		Extra:     extra,
	}, nil
}
