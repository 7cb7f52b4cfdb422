// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl"
)

// ParseConfigFile returns an agent Config parsed from an HCL file. Only the
// keys present in the file are set; merging with defaults is the caller's
// job.
func ParseConfigFile(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, err
	}

	c := &Config{}
	if err := hcl.Decode(c, buf.String()); err != nil {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, err)
	}

	if len(c.ExtraKeysHCL) != 0 {
		sort.Strings(c.ExtraKeysHCL)
		return nil, fmt.Errorf("invalid keys in %s: %s", path, strings.Join(c.ExtraKeysHCL, ", "))
	}

	return c, nil
}

// LoadConfig loads a config file, or every *.hcl file of a directory in
// lexical order, merged left to right.
func LoadConfig(path string) (*Config, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !fi.IsDir() {
		return ParseConfigFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".hcl" {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	sort.Strings(files)

	result := &Config{}
	for _, file := range files {
		c, err := ParseConfigFile(file)
		if err != nil {
			return nil, err
		}
		result = result.Merge(c)
	}
	return result, nil
}
