// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package manifest

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

const schemaURL = "embedFS:///schemas/manifest.schema.json"

func loadSchemaFile(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(strings.TrimPrefix(u.Path, "/"))
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		jsonschema.Loaders["embedFS"] = loadSchemaFile
		compiled, compileErr = jsonschema.Compile(schemaURL)
	})
	return compiled, compileErr
}

// ValidateSchema checks raw manifest bytes against the manifest JSON Schema
// before any field-level decoding happens, the same two-step
// "schema-validate, then decode" idiom used for job metadata elsewhere in
// this family of tools. A missing required field or wrong `files` shape
// fails here with a reason that maps onto the validator's
// manifest_schema_invalid issue (see pkg/checkvalidate).
func ValidateSchema(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("manifest: compile schema: %w", err)
	}

	var v interface{}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return fmt.Errorf("manifest: decode for schema validation: %w", err)
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("manifest: schema validation failed: %w", err)
	}
	return nil
}
