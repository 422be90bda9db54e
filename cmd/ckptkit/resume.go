// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ClusterCockpit/ckptkit/pkg/resume"
)

func newResumeCmd() *cobra.Command {
	var (
		policy       string
		beforeStep   int64
		haveBefore   bool
		full         bool
		repairLatest bool
	)

	cmd := &cobra.Command{
		Use:   "resume <root>",
		Short: "Select the best resumable checkpoint under a root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := resume.Options{
				Policy:       resume.Policy(policy),
				FullHash:     full,
				RepairLatest: repairLatest,
			}
			if cmd.Flags().Changed("before-step") {
				haveBefore = true
			}
			if haveBefore {
				opts.BeforeStep = &beforeStep
			}

			plan, err := resume.Select(args[0], opts)
			if err != nil {
				return fmt.Errorf("resume: %w", err)
			}
			if err := printJSON(plan); err != nil {
				return err
			}
			if !plan.Validation.Valid {
				return validationFailure{}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", string(resume.PolicyLatestValid), "resume policy: latest-valid, last-known-good, newest-before, best")
	cmd.Flags().Int64Var(&beforeStep, "before-step", 0, "required for --policy=newest-before")
	cmd.Flags().BoolVar(&full, "full", false, "hash files in full rather than sampled mode during validation")
	cmd.Flags().BoolVar(&repairLatest, "repair-latest", true, "republish the latest pointer to the chosen checkpoint")
	return cmd
}
