// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ClusterCockpit/ckptkit/internal/atomiccommit"
	"github.com/ClusterCockpit/ckptkit/pkg/manifest"
)

// copyWriter builds an atomiccommit.Writer that copies every regular file
// under sourceDir into the staging directory the CORE hands it, preserving
// relative paths, then hands the result to manifest.Build. Framework-
// specific tensor serialization (how sourceDir got populated in the first
// place) is out of CORE scope per §1/§6; by the time this runs, the
// checkpoint's files already exist on disk.
func copyWriter(sourceDir string, opts manifest.BuildOptions) atomiccommit.Writer {
	return func(stagingDir string) (*manifest.Manifest, error) {
		err := filepath.Walk(sourceDir, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(sourceDir, p)
			if err != nil {
				return err
			}
			dst := filepath.Join(stagingDir, rel)
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			return copyFile(p, dst, info.Mode())
		})
		if err != nil {
			return nil, fmt.Errorf("copy %s into staging: %w", sourceDir, err)
		}
		return manifest.Build(stagingDir, opts)
	}
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
