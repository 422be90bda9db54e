// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package quarantine moves confirmed-bad checkpoints aside, preserving
// evidence without breaking validation of the rest of a root. The CORE
// never auto-quarantines on validation failure; callers decide.
package quarantine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
)

// Quarantine moves checkpoint under <root>/corrupt/<basename>-<uuid> via a
// single rename, writes a reason.txt inside the moved directory, fsyncs
// the corrupt/ directory, and returns the new path.
func Quarantine(checkpointDir, root, reason string) (string, error) {
	corruptDir := filepath.Join(root, ckptfs.CorruptDirName)
	if err := ckptfs.EnsureDir(corruptDir); err != nil {
		return "", err
	}

	target := filepath.Join(corruptDir, fmt.Sprintf("%s-%s", filepath.Base(checkpointDir), uuid.NewString()))
	if err := os.Rename(checkpointDir, target); err != nil {
		return "", fmt.Errorf("quarantine: move %s: %w", checkpointDir, err)
	}

	reasonPath := filepath.Join(target, "reason.txt")
	line := fmt.Sprintf("%sZ %s\n", time.Now().UTC().Format("2006-01-02T15:04:05"), reason)
	if err := os.WriteFile(reasonPath, []byte(line), 0o644); err != nil {
		return target, fmt.Errorf("quarantine: write reason.txt in %s: %w", target, err)
	}

	if err := ckptfs.FsyncDir(corruptDir); err != nil {
		return target, fmt.Errorf("quarantine: fsync %s: %w", corruptDir, err)
	}
	return target, nil
}
