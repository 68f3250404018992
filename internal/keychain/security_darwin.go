// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build darwin

package keychain

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// securityBackend stores generic passwords with the macOS security command.
// Each secret is an item with account ServiceName and service key.
type securityBackend struct{}

func newSecurityBackend() (*securityBackend, error) {
	if _, err := exec.LookPath("security"); err != nil {
		return nil, fmt.Errorf("security command not found: %w", err)
	}
	return &securityBackend{}, nil
}

// run executes security with args and returns stdout and whether the
// failure (if any) was a missing item.
func (s *securityBackend) run(args ...string) (string, bool, error) {
	cmd := exec.Command("security", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		missing := strings.Contains(stderr.String(), "could not be found")
		return "", missing, fmt.Errorf("security %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), false, nil
}

func (s *securityBackend) Set(key, value string) error {
	// -U updates an existing item in place.
	_, _, err := s.run("add-generic-password", "-a", ServiceName, "-s", key, "-w", value, "-U")
	return err
}

func (s *securityBackend) Get(key string) (string, error) {
	out, missing, err := s.run("find-generic-password", "-a", ServiceName, "-s", key, "-w")
	if missing {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *securityBackend) Delete(key string) error {
	_, missing, err := s.run("delete-generic-password", "-a", ServiceName, "-s", key)
	if missing {
		return nil
	}
	return err
}
