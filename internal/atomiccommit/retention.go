// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package atomiccommit

import (
	"sort"

	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
	"github.com/ClusterCockpit/ckptkit/pkg/log"
	"github.com/ClusterCockpit/ckptkit/pkg/manifest"
)

// readStep returns the manifest step for a checkpoint directory, or -1 if
// its manifest cannot be read — such a checkpoint sorts as oldest.
func readStep(checkpointDir string) int64 {
	m, err := manifest.Read(manifest.Path(checkpointDir))
	if err != nil {
		return -1
	}
	return m.Step
}

// ApplyRetention enumerates checkpoints under root, computes the survivor
// set (the keep_last highest-step checkpoints, union any checkpoint whose
// step is a multiple of keep_every, union pinned), and removes every
// non-survivor. Per-victim removal failures are logged and swallowed —
// retention never aborts a commit.
func ApplyRetention(root string, policy RetentionPolicy, pinned map[string]struct{}) {
	checkpoints, err := ckptfs.ListCheckpoints(root)
	if err != nil {
		log.Warnf("atomiccommit: retention: list checkpoints under %s: %v", root, err)
		return
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return readStep(checkpoints[i]) < readStep(checkpoints[j])
	})

	survivors := make(map[string]struct{}, len(checkpoints))
	if policy.KeepLast > 0 {
		start := len(checkpoints) - policy.KeepLast
		if start < 0 {
			start = 0
		}
		for _, c := range checkpoints[start:] {
			survivors[c] = struct{}{}
		}
	}
	if policy.KeepEvery > 0 {
		for _, c := range checkpoints {
			step := readStep(c)
			if step >= 0 && step%int64(policy.KeepEvery) == 0 {
				survivors[c] = struct{}{}
			}
		}
	}
	for p := range pinned {
		survivors[p] = struct{}{}
	}

	for _, c := range checkpoints {
		if _, ok := survivors[c]; ok {
			continue
		}
		if err := ckptfs.SafeRemoveCheckpoint(c); err != nil {
			log.Warnf("atomiccommit: retention: remove %s: %v", c, err)
		}
	}
}
