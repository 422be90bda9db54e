// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package ckptfs

import "fmt"

// DiskFreeBytes reports free space on the filesystem containing path.
func DiskFreeBytes(path string) (uint64, error) {
	return 0, fmt.Errorf("ckptfs: DiskFreeBytes not implemented on this platform")
}
