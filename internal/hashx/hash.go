// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hashx computes SHA-256 digests of checkpoint files, full or
// sampled, fanned out across a bounded worker pool.
package hashx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// DefaultSampleBytes is the sampled-mode window used by manifest
// construction and quick validation unless overridden.
const DefaultSampleBytes = 65536

// DefaultParallelism is the worker count used by BatchHash when the caller
// does not specify one.
const DefaultParallelism = 4

const chunkSize = 1 << 20 // 1 MiB

// Options controls a single or batch hash computation.
type Options struct {
	// SampleBytes <= 0 requests full-file hashing. Sampled mode is also
	// skipped automatically for files small enough that head+tail would
	// overlap (2*SampleBytes >= size).
	SampleBytes int64
	Parallelism int
}

// HashError identifies which path a batch hash aborted on.
type HashError struct {
	Path string
	Err  error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("hashx: %s: %v", e.Path, e.Err)
}

func (e *HashError) Unwrap() error { return e.Err }

// HashFile computes the SHA-256 digest of a single file as lowercase hex.
//
// Full mode (sampleBytes <= 0, or 2*sampleBytes >= file size) hashes the
// entire file in 1 MiB chunks. Sampled mode hashes the first sampleBytes,
// then the last sampleBytes (seeking to max(size-sampleBytes, sampleBytes)
// so head and tail never overlap), then folds in the decimal ASCII
// encoding of the total size — this final fold is what makes a sampled
// digest sensitive to truncation or appension even when head and tail
// bytes are unchanged.
func HashFile(path string, sampleBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	h := sha256.New()
	if sampleBytes <= 0 || sampleBytes*2 >= size {
		if _, err := io.CopyBuffer(h, f, make([]byte, chunkSize)); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	head := make([]byte, sampleBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	h.Write(head[:n])

	if size > sampleBytes {
		tailOffset := size - sampleBytes
		if tailOffset < sampleBytes {
			tailOffset = sampleBytes
		}
		if _, err := f.Seek(tailOffset, io.SeekStart); err != nil {
			return "", err
		}
		tail := make([]byte, sampleBytes)
		n, err = io.ReadFull(f, tail)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return "", err
		}
		h.Write(tail[:n])
	}

	h.Write([]byte(strconv.FormatInt(size, 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// BatchHash hashes every path in paths concurrently across a bounded worker
// pool (default parallelism DefaultParallelism), returning a map from path
// to digest. The first file read error aborts the whole batch with a
// *HashError identifying the offending path; files not yet started are
// skipped once the errgroup's context is cancelled.
func BatchHash(paths []string, opts Options) (map[string]string, error) {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	results := make(map[string]string, len(paths))
	resultsCh := make(chan [2]string, len(paths))

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(parallelism)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			digest, err := HashFile(p, opts.SampleBytes)
			if err != nil {
				return &HashError{Path: p, Err: err}
			}
			resultsCh <- [2]string{p, digest}
			return nil
		})
	}

	err := g.Wait()
	close(resultsCh)
	if err != nil {
		return nil, err
	}
	for pair := range resultsCh {
		results[pair[0]] = pair[1]
	}
	return results, nil
}
