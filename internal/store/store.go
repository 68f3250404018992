// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package store provides the key/value persistence used for connections,
// per-document selections, recently used connections and schema snapshots.
// Values are opaque bytes partitioned by scope; there are no transactions
// and the last write wins.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Scope partitions the key space.
type Scope string

const (
	// Global values are shared by every workspace.
	Global Scope = "global"
	// Workspace values belong to the current workspace only.
	Workspace Scope = "workspace"
)

// Persisted keys.
const (
	KeyLastUsedConnection     = "lastUsedConnection.12"
	KeyConnections            = "clusterUris.12"
	KeyRecentConnections      = "kusto.lastUsedConnections.v2"
	KeyPrefixForClusterSchema = "prefixForClusterSchema.12"
)

// Store is a scoped key/value store.
type Store interface {
	// Get returns the stored value and whether it exists.
	Get(ctx context.Context, scope Scope, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, scope Scope, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, scope Scope, key string) error
}

// GetJSON decodes the value stored under key into v.
// It reports false when the key does not exist.
func GetJSON(ctx context.Context, s Store, scope Scope, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, scope, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", scope, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, scope Scope, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", scope, key, err)
	}
	return s.Set(ctx, scope, key, data)
}
