// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ClusterCockpit/ckptkit/internal/quarantine"
)

func newQuarantineCmd() *cobra.Command {
	var (
		root   string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "quarantine <checkpoint-path>",
		Short: "Move a confirmed-bad checkpoint aside with a reason record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				return fmt.Errorf("quarantine: --root is required")
			}
			target, err := quarantine.Quarantine(args[0], root, reason)
			if err != nil {
				return fmt.Errorf("quarantine: %w", err)
			}
			return printJSON(map[string]interface{}{"new_path": target})
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "checkpoint root the corrupt/ directory lives under (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason the checkpoint is being quarantined (required)")
	cmd.MarkFlagRequired("reason")
	return cmd
}
