// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ckptfs

import (
	"fmt"
	"syscall"
)

// DiskFreeBytes reports free space on the filesystem containing path.
func DiskFreeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("ckptfs: statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
