// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package daemon owns the standing-process lifecycle for ckptkit's
// long-running CLI modes (emit-metrics --daemon): privilege drop before the
// first tick, a gocron schedule that re-invokes the tick on a fixed
// interval, and systemd readiness notification, all as one unit instead of
// scattering os/exec and signal plumbing across cmd/.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/ClusterCockpit/ckptkit/pkg/log"
)

// Options configures Run.
type Options struct {
	Interval time.Duration
	User     string // drop privileges to this user before scheduling, if set
	Group    string // drop privileges to this group before scheduling, if set
}

// Run drops privileges if requested, schedules tick on a gocron duration
// job, fires it once immediately, notifies systemd of readiness, and blocks
// until SIGINT/SIGTERM or ctx is canceled. The scheduler is shut down and
// systemd is notified of the stop before Run returns.
func Run(ctx context.Context, opts Options, tick func() error) error {
	if opts.User != "" || opts.Group != "" {
		if err := dropPrivileges(opts.User, opts.Group); err != nil {
			return fmt.Errorf("daemon: drop privileges: %w", err)
		}
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("daemon: create scheduler: %w", err)
	}

	runTick := func() {
		if err := tick(); err != nil {
			log.Errorf("daemon: tick: %v", err)
		}
	}

	scheduler.NewJob(gocron.DurationJob(opts.Interval), gocron.NewTask(runTick))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	runTick()
	scheduler.Start()
	notifySystemd(true, "watching checkpoint root")

	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	notifySystemd(false, "stopping")
	return scheduler.Shutdown()
}

// dropPrivileges changes the process's user and group to those named,
// adapted from the teacher's config-driven privilege drop for ckptkit's
// daemon-user/daemon-group flags. The go runtime takes care of all threads
// (not only the calling one) executing the underlying syscall.
func dropPrivileges(username, group string) error {
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			log.Warnf("daemon: looking up group %s: %v", group, err)
			return err
		}
		gid, _ := strconv.Atoi(g.Gid)
		if err := syscall.Setgid(gid); err != nil {
			log.Warnf("daemon: setting gid %d: %v", gid, err)
			return err
		}
	}

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			log.Warnf("daemon: looking up user %s: %v", username, err)
			return err
		}
		uid, _ := strconv.Atoi(u.Uid)
		if err := syscall.Setuid(uid); err != nil {
			log.Warnf("daemon: setting uid %d: %v", uid, err)
			return err
		}
	}

	return nil
}

// notifySystemd tells systemd the daemon is ready or stopping, for units
// that supervise emit-metrics --daemon with Type=notify.
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
func notifySystemd(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}
	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	cmd.Run() // best effort, nothing useful to do with a failure here
}
