// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
	"github.com/ClusterCockpit/ckptkit/internal/daemon"
	"github.com/ClusterCockpit/ckptkit/pkg/checkvalidate"
	"github.com/ClusterCockpit/ckptkit/pkg/log"
	"github.com/ClusterCockpit/ckptkit/pkg/metrics"
	"github.com/ClusterCockpit/ckptkit/pkg/resume"
)

func newEmitMetricsCmd() *cobra.Command {
	var (
		root        string
		textfile    string
		pushgateway string
		job         string
		jobID       string
		runID       string
		daemonMode  bool
		interval    time.Duration
		daemonLog   string
		daemonUser  string
		daemonGroup string
	)

	cmd := &cobra.Command{
		Use:   "emit-metrics",
		Short: "Validate checkpoints under a root and publish Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("root") && cfg.Root != "" {
				root = cfg.Root
			}
			if !cmd.Flags().Changed("textfile") && cfg.Metrics.Textfile != "" {
				textfile = cfg.Metrics.Textfile
			}
			if !cmd.Flags().Changed("pushgateway") && cfg.Metrics.Pushgateway != "" {
				pushgateway = cfg.Metrics.Pushgateway
			}
			if !cmd.Flags().Changed("job") && cfg.Metrics.PushgatewayJob != "" {
				job = cfg.Metrics.PushgatewayJob
			}
			if root == "" {
				return fmt.Errorf("emit-metrics: --root is required (or set root in --config)")
			}

			labels := prometheus.Labels{}
			for k, v := range cfg.Metrics.Labels {
				labels[k] = v
			}
			if jobID != "" {
				labels["job_id"] = jobID
			}
			if runID != "" {
				labels["run_id"] = runID
			}
			emitter := metrics.NewEmitter(labels)

			runOnce := func() error {
				return emitMetricsOnce(emitter, root, textfile, pushgateway, job)
			}

			if !daemonMode {
				return runOnce()
			}

			if daemonLog != "" {
				log.UseRotatingFile(daemonLog, 10, 5, 28)
			}
			return daemon.Run(cmd.Context(), daemon.Options{
				Interval: interval,
				User:     daemonUser,
				Group:    daemonGroup,
			}, runOnce)
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "checkpoint root to scan (required unless set in --config)")
	cmd.Flags().StringVar(&textfile, "textfile", "", "write metrics to this path for node_exporter's textfile collector")
	cmd.Flags().StringVar(&pushgateway, "pushgateway", "", "push metrics to this Prometheus Pushgateway URL")
	cmd.Flags().StringVar(&job, "job", "ckptkit", "Pushgateway job name")
	cmd.Flags().StringVar(&jobID, "job-id", "", "job_id label attached to every metric")
	cmd.Flags().StringVar(&runID, "run-id", "", "run_id label attached to every metric")
	cmd.Flags().BoolVar(&daemonMode, "daemon", false, "run forever, re-emitting metrics on an interval instead of exiting")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "re-emission interval in --daemon mode")
	cmd.Flags().StringVar(&daemonLog, "daemon-log", "", "rotate event logs to this file in --daemon mode instead of stdout")
	cmd.Flags().StringVar(&daemonUser, "daemon-user", "", "drop privileges to this user before entering --daemon mode")
	cmd.Flags().StringVar(&daemonGroup, "daemon-group", "", "drop privileges to this group before entering --daemon mode")
	return cmd
}

func emitMetricsOnce(emitter *metrics.Emitter, root, textfile, pushgateway, job string) error {
	candidates, err := ckptfs.ListCheckpoints(root)
	if err != nil {
		return fmt.Errorf("emit-metrics: %w", err)
	}

	opts := checkvalidate.DefaultOptions()
	results := make([]checkvalidate.Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, checkvalidate.Validate(c, opts))
	}
	emitter.RecordValidation(results)
	emitter.RecordDiskFree(root)

	if plan, err := resume.Select(root, resume.Options{Policy: resume.PolicyBest}); err == nil {
		emitter.RecordResumePlan(plan)
	} else {
		log.Warnf("emit-metrics: resume selection: %v", err)
	}

	if textfile != "" {
		if err := emitter.WriteTextfile(textfile); err != nil {
			return fmt.Errorf("emit-metrics: %w", err)
		}
	}
	if pushgateway != "" {
		if err := emitter.PushGateway(pushgateway, job); err != nil {
			return fmt.Errorf("emit-metrics: %w", err)
		}
	}
	return nil
}
