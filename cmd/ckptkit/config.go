// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ClusterCockpit/ckptkit/internal/config"
)

// loadConfig resolves internal/config.Config from the --config flag plus
// any command-local overrides, in that order.
func loadConfig(overrides func(*config.Config)) (config.Config, error) {
	return config.Load(flagConfigPath, overrides)
}

// printJSON writes v to stdout as pretty-printed JSON, the uniform report
// format across every subcommand that emits structured output.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
