// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"github.com/spf13/cobra"

	"github.com/ClusterCockpit/ckptkit/pkg/log"
)

var (
	flagConfigPath string
	flagVerbose    bool
)

// newRootCmd builds the ckptkit command tree. Every subcommand is a thin
// adapter over the CORE packages (pkg/manifest, internal/atomiccommit,
// pkg/checkvalidate, pkg/resume, internal/quarantine, pkg/metrics); none of
// the decision logic lives here.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ckptkit",
		Short:         "Checkpoint integrity and recovery engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagVerbose {
				log.SetLogLevel("debug")
			} else {
				log.SetLogLevel("info")
			}
		},
	}

	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newWriteCmd(),
		newValidateCmd(),
		newScanCmd(),
		newResumeCmd(),
		newQuarantineCmd(),
		newEmitMetricsCmd(),
	)
	return root
}
