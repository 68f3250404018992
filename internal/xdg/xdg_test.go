// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirsHonorEnvironment(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))

	cfg, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "cfg", AppName), cfg)

	state, err := StateDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "state", AppName), state)

	info, err := os.Stat(state)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
