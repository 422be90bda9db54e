// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package resume implements policy-driven recovery: pick the best
// resumable checkpoint from a possibly damaged set, and optionally repair
// the "latest" pointer to point at it.
package resume

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ClusterCockpit/ckptkit/internal/ckptfs"
	"github.com/ClusterCockpit/ckptkit/pkg/checkvalidate"
	"github.com/ClusterCockpit/ckptkit/pkg/log"
)

// Policy is the closed set of resume strategies. Each is modeled as a
// tagged variant rather than a subclass or a stringly-typed switch, so the
// dispatch in Select is a single exhaustive switch over this type.
type Policy string

const (
	PolicyLatestValid   Policy = "latest-valid"
	PolicyLastKnownGood Policy = "last-known-good"
	PolicyNewestBefore  Policy = "newest-before"
	PolicyBest          Policy = "best"
)

// Plan is the outcome of Select: which checkpoint to resume from, at what
// step, why it was chosen, and its full validation result. Step is -1 iff
// no manifest could be parsed for the chosen checkpoint.
type Plan struct {
	Checkpoint string
	Step       int64
	Reason     string
	Validation checkvalidate.Result
}

// Options configures Select.
type Options struct {
	Policy       Policy
	BeforeStep   *int64 // required for PolicyNewestBefore
	FullHash     bool
	RepairLatest bool
}

// step returns a candidate's manifest step, or -1 for unparseable
// manifests so they always sort last.
func step(r checkvalidate.Result) int64 {
	if r.Manifest == nil {
		return -1
	}
	return r.Manifest.Step
}

// validateAll validates every candidate concurrently and returns results
// in the same order as candidates, independent of completion order.
func validateAll(candidates []string, fullHash bool) []checkvalidate.Result {
	results := make([]checkvalidate.Result, len(candidates))
	g := new(errgroup.Group)
	opts := checkvalidate.DefaultOptions()
	opts.FullHash = fullHash
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			results[i] = checkvalidate.Validate(c, opts)
			return nil
		})
	}
	_ = g.Wait() // checkvalidate.Validate never returns an error value
	return results
}

// Select enumerates checkpoints under root, validates every candidate
// (in parallel), sorts by manifest step descending (unparseable manifests
// last), and applies the chosen policy's first-match predicate.
//
// It errors if the candidate set is empty, or — for every policy except
// PolicyBest — if no candidate satisfies the policy's predicate.
// PolicyNewestBefore requires Options.BeforeStep and fails immediately if
// it is nil, per spec: a programmer error, not a runtime condition.
func Select(root string, opts Options) (Plan, error) {
	if opts.Policy == PolicyNewestBefore && opts.BeforeStep == nil {
		return Plan{}, fmt.Errorf("resume: policy %q requires BeforeStep", PolicyNewestBefore)
	}

	candidates, err := ckptfs.ListCheckpoints(root)
	if err != nil {
		return Plan{}, fmt.Errorf("resume: enumerate checkpoints under %s: %w", root, err)
	}
	if len(candidates) == 0 {
		return Plan{}, fmt.Errorf("resume: no checkpoints available under %s", root)
	}

	validations := validateAll(candidates, opts.FullHash)
	sort.SliceStable(validations, func(i, j int) bool { return step(validations[i]) > step(validations[j]) })

	latestPath, haveLatest := ckptfs.ReadLatestPointer(root)

	var chosen *checkvalidate.Result
	var reason string

	pickFirst := func(pred func(checkvalidate.Result) bool) *checkvalidate.Result {
		for i := range validations {
			if pred(validations[i]) {
				return &validations[i]
			}
		}
		return nil
	}

	switch opts.Policy {
	case PolicyLatestValid, "":
		chosen = pickFirst(func(r checkvalidate.Result) bool { return r.Valid })
		reason = "latest valid checkpoint"

	case PolicyLastKnownGood:
		if haveLatest {
			for i := range validations {
				if validations[i].Checkpoint == latestPath && validations[i].Valid {
					chosen = &validations[i]
					reason = "latest pointer valid"
					break
				}
			}
		}
		if chosen == nil {
			chosen = pickFirst(func(r checkvalidate.Result) bool { return r.Valid })
			reason = "fallback to newest valid"
		}

	case PolicyNewestBefore:
		before := *opts.BeforeStep
		chosen = pickFirst(func(r checkvalidate.Result) bool {
			return r.Valid && r.Manifest != nil && r.Manifest.Step <= before
		})
		reason = fmt.Sprintf("newest valid checkpoint before %d", before)

	case PolicyBest:
		chosen = pickFirst(func(r checkvalidate.Result) bool { return r.Valid })
		if chosen != nil {
			reason = "best valid checkpoint"
		} else {
			chosen = &validations[0]
			reason = "no valid checkpoints; using newest even if invalid"
		}

	default:
		return Plan{}, fmt.Errorf("resume: unknown policy %q", opts.Policy)
	}

	if chosen == nil {
		return Plan{}, fmt.Errorf("resume: no checkpoints available under %s", root)
	}

	if opts.RepairLatest && chosen.Valid {
		if err := ckptfs.UpdateLatestPointer(root, chosen.Checkpoint); err != nil {
			log.Warnf("resume: repair latest pointer to %s: %v", chosen.Checkpoint, err)
			log.Event("resume_failed", "warn", map[string]any{
				"checkpoint_path": chosen.Checkpoint,
				"reason":          err.Error(),
			})
		}
	}

	plan := Plan{Checkpoint: chosen.Checkpoint, Step: step(*chosen), Reason: reason, Validation: *chosen}
	log.Event("resume_plan", "info", map[string]any{
		"checkpoint_path": plan.Checkpoint,
		"step":            plan.Step,
		"reason":          plan.Reason,
		"valid":           plan.Validation.Valid,
	})
	return plan, nil
}
