// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

// validationFailure marks a command outcome as "ran successfully but the
// checkpoint(s) in question failed validation or no candidate satisfied
// the resume policy" — exit code 1, per §6, as opposed to an unexpected
// error (os/disk failures, programmer errors) which exits non-zero with a
// logged cause.
type validationFailure struct{}

func (validationFailure) Error() string { return "validation failed" }

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(validationFailure); ok {
		return 1
	}
	return 2
}
