// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ClusterCockpit/ckptkit/internal/atomiccommit"
	"github.com/ClusterCockpit/ckptkit/pkg/manifest"
)

func newWriteCmd() *cobra.Command {
	var (
		root         string
		source       string
		step         int64
		jobID        string
		runID        string
		worldSize    int
		framework    string
		precision    string
		modelName    string
		full         bool
		sampleBytes  int64
		keepLast     int
		keepEvery    int
		updateLatest bool
	)

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Atomically commit a prepared checkpoint directory under a root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("root") && cfg.Root != "" {
				root = cfg.Root
			}
			if !cmd.Flags().Changed("job-id") && cfg.JobID != "" {
				jobID = cfg.JobID
			}
			if !cmd.Flags().Changed("run-id") && cfg.RunID != "" {
				runID = cfg.RunID
			}
			if !cmd.Flags().Changed("keep-last") {
				keepLast = cfg.Retention.KeepLast
			}
			if !cmd.Flags().Changed("keep-every") {
				keepEvery = cfg.Retention.KeepEvery
			}
			if !cmd.Flags().Changed("sample-bytes") && cfg.Hashing.SampleBytes != 0 {
				sampleBytes = cfg.Hashing.SampleBytes
			}
			if !cmd.Flags().Changed("full") {
				full = cfg.Hashing.Full
			}
			if root == "" {
				return fmt.Errorf("write: --root is required (or set root in --config)")
			}

			dest := filepath.Join(root, fmt.Sprintf("step-%d", step))

			opts := manifest.BuildOptions{
				JobID:       jobID,
				RunID:       runID,
				Step:        step,
				WorldSize:   worldSize,
				SampleBytes: sampleBytes,
				Full:        full,
			}
			if framework != "" {
				opts.Framework = &framework
			}
			if precision != "" {
				opts.Precision = &precision
			}
			if modelName != "" {
				opts.ModelName = &modelName
			}

			commitOpts := atomiccommit.DefaultOptions()
			commitOpts.UpdateLatest = updateLatest
			if keepLast > 0 || keepEvery > 0 {
				commitOpts.Retention = &atomiccommit.RetentionPolicy{KeepLast: keepLast, KeepEvery: keepEvery}
			}

			m, err := atomiccommit.Commit(dest, copyWriter(source, opts), commitOpts)
			if err != nil {
				return fmt.Errorf("write: %w", err)
			}
			return printJSON(map[string]interface{}{
				"checkpoint_path": dest,
				"step":            m.Step,
				"files":           len(m.Files),
			})
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "checkpoint root directory (required unless set in --config)")
	cmd.Flags().StringVar(&source, "source", "", "directory containing the already-written checkpoint files (required)")
	cmd.Flags().Int64Var(&step, "step", 0, "training step this checkpoint represents")
	cmd.Flags().StringVar(&jobID, "job-id", "unknown", "opaque job identifier")
	cmd.Flags().StringVar(&runID, "run-id", "unknown", "opaque run identifier")
	cmd.Flags().IntVar(&worldSize, "world-size", 1, "number of participating ranks")
	cmd.Flags().StringVar(&framework, "framework", "", "training framework name")
	cmd.Flags().StringVar(&precision, "precision", "", "numeric precision of the checkpoint")
	cmd.Flags().StringVar(&modelName, "model-name", "", "model name")
	cmd.Flags().BoolVar(&full, "full", false, "hash files in full rather than sampled mode")
	cmd.Flags().Int64Var(&sampleBytes, "sample-bytes", 0, "sampled-hash window size (0 = default)")
	cmd.Flags().IntVar(&keepLast, "keep-last", 3, "retention: keep the N highest-step checkpoints")
	cmd.Flags().IntVar(&keepEvery, "keep-every", 0, "retention: also keep checkpoints whose step is a multiple of this")
	cmd.Flags().BoolVar(&updateLatest, "update-latest", true, "publish the latest pointer after a successful commit")
	cmd.MarkFlagRequired("source")
	return cmd
}
