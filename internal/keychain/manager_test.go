// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SetGetDelete(t *testing.T) {
	m := NewWithKeyring(keyring.NewArrayKeyring(nil))

	_, err := m.Get("token:https://help.kusto.windows.net")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set("token:https://help.kusto.windows.net", "abc"))
	v, err := m.Get("token:https://help.kusto.windows.net")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, m.Delete("token:https://help.kusto.windows.net"))
	require.NoError(t, m.Delete("token:https://help.kusto.windows.net"))
	_, err = m.Get("token:https://help.kusto.windows.net")
	assert.ErrorIs(t, err, ErrNotFound)
}
