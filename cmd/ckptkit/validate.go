// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"github.com/spf13/cobra"

	"github.com/ClusterCockpit/ckptkit/pkg/checkvalidate"
)

func newValidateCmd() *cobra.Command {
	var (
		full        bool
		sampleBytes int64
	)

	cmd := &cobra.Command{
		Use:   "validate <checkpoint-path>",
		Short: "Diagnose a single checkpoint directory against its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := checkvalidate.DefaultOptions()
			opts.FullHash = full
			if sampleBytes > 0 {
				opts.SampleBytes = sampleBytes
			}

			result := checkvalidate.Validate(args[0], opts)
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.Valid {
				return validationFailure{}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "hash files in full rather than sampled mode")
	cmd.Flags().Int64Var(&sampleBytes, "sample-bytes", 0, "sampled-hash window size (0 = default)")
	return cmd
}
