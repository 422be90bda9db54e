// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command ckptkit is the operator CLI for the checkpoint integrity and
// recovery engine: a thin adapter over the CORE packages, out of CORE
// scope per §1/§6.
package main

import (
	"os"

	"github.com/ClusterCockpit/ckptkit/pkg/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Errorf("ckptkit: %v", err)
		os.Exit(exitCodeFor(err))
	}
}
