// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package checkvalidate implements the deterministic integrity checker: it
// diagnoses a checkpoint directory against its manifest and returns a
// structured result, never raising for data-quality problems.
package checkvalidate

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/ClusterCockpit/ckptkit/internal/hashx"
	"github.com/ClusterCockpit/ckptkit/pkg/manifest"
)

// Reason is the closed set of issue tags the validator can emit.
type Reason string

const (
	ReasonManifestMissing        Reason = "manifest_missing"
	ReasonManifestSchema         Reason = "manifest_schema_invalid"
	ReasonFileMissing            Reason = "file_missing"
	ReasonSizeMismatch           Reason = "size_mismatch"
	ReasonHashMismatch           Reason = "hash_mismatch"
	ReasonZeroSizedFile          Reason = "zero_sized_file"
	ReasonSplitBrainStepMismatch Reason = "split_brain_step_mismatch"
)

// Issue is a single diagnosed problem, optionally scoped to one file.
type Issue struct {
	Reason Reason
	Detail string
	Path   string // relative path, empty if the issue isn't file-scoped
}

// Result is the outcome of validating one checkpoint. Valid is true iff
// Issues is empty. Manifest is populated whenever the manifest could be
// parsed, even if later checks failed.
type Result struct {
	Checkpoint string
	Valid      bool
	Issues     []Issue
	Manifest   *manifest.Manifest
}

var leadingDigits = regexp.MustCompile(`\d+`)

// Options configures Validate.
type Options struct {
	FullHash    bool
	SampleBytes int64 // only used when FullHash is false; 0 means hashx.DefaultSampleBytes
}

// DefaultOptions matches the spec's validate(..., full_hash=false,
// sample_bytes=65536) default — sampled hashing runs on every call unless
// the caller asks for full hashing.
func DefaultOptions() Options {
	return Options{SampleBytes: hashx.DefaultSampleBytes}
}

// Validate runs the ordered checks in §4.5: manifest presence, manifest
// parse, split-brain detection, per-file presence/size, then hashing.
func Validate(checkpointDir string, opts Options) Result {
	result := Result{Checkpoint: checkpointDir}

	manifestPath := manifest.Path(checkpointDir)
	if _, err := os.Stat(manifestPath); err != nil {
		result.Issues = append(result.Issues, Issue{Reason: ReasonManifestMissing, Detail: "manifest missing"})
		return result
	}

	m, err := manifest.Read(manifestPath)
	if err != nil {
		result.Issues = append(result.Issues, Issue{
			Reason: ReasonManifestSchema,
			Detail: "manifest load failed: " + err.Error(),
		})
		return result
	}
	result.Manifest = m

	if match := leadingDigits.FindString(filepath.Base(checkpointDir)); match != "" {
		dirStep, parseErr := strconv.ParseInt(match, 10, 64)
		if parseErr == nil && dirStep != m.Step {
			result.Issues = append(result.Issues, Issue{
				Reason: ReasonSplitBrainStepMismatch,
				Detail: "directory step and manifest step disagree",
			})
		}
	}

	var toHash []string
	existsByRel := make(map[string]bool, len(m.Files))
	for _, entry := range m.Files {
		filePath := filepath.Join(checkpointDir, filepath.FromSlash(entry.Path))
		info, err := os.Stat(filePath)
		if err != nil {
			result.Issues = append(result.Issues, Issue{Reason: ReasonFileMissing, Detail: "missing file", Path: entry.Path})
			existsByRel[entry.Path] = false
			continue
		}
		existsByRel[entry.Path] = true
		if info.Size() == 0 {
			result.Issues = append(result.Issues, Issue{Reason: ReasonZeroSizedFile, Detail: "zero-sized file", Path: entry.Path})
		}
		if info.Size() != entry.Size {
			result.Issues = append(result.Issues, Issue{
				Reason: ReasonSizeMismatch,
				Detail: "size does not match manifest",
				Path:   entry.Path,
			})
		}
		toHash = append(toHash, filePath)
	}

	if len(toHash) > 0 {
		sampleBytes := int64(0)
		if !opts.FullHash {
			sampleBytes = opts.SampleBytes
			if sampleBytes == 0 {
				sampleBytes = hashx.DefaultSampleBytes
			}
		}
		digests, err := hashx.BatchHash(toHash, hashx.Options{SampleBytes: sampleBytes})
		if err != nil {
			// A file disappeared between the presence check and hashing
			// (a concurrent retention run, per §5): treat as missing, not
			// a hard validator error. The batch aborted, so hash each file
			// on its own to keep the digests of the files still present.
			digests = map[string]string{}
			for _, p := range toHash {
				if d, hashErr := hashx.HashFile(p, sampleBytes); hashErr == nil {
					digests[p] = d
				}
			}
		}
		for _, entry := range m.Files {
			if !existsByRel[entry.Path] {
				continue
			}
			filePath := filepath.Join(checkpointDir, filepath.FromSlash(entry.Path))
			digest, ok := digests[filePath]
			if !ok {
				result.Issues = append(result.Issues, Issue{Reason: ReasonFileMissing, Detail: "disappeared during validation", Path: entry.Path})
				continue
			}
			if digest != entry.SHA256 {
				result.Issues = append(result.Issues, Issue{
					Reason: ReasonHashMismatch,
					Detail: "sha256 does not match manifest",
					Path:   entry.Path,
				})
			}
		}
	}

	result.Valid = len(result.Issues) == 0
	return result
}
