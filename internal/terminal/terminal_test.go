// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/term"
)

func TestLinesUsed(t *testing.T) {
	tests := []struct {
		length, width, want int
	}{
		{0, 80, 2},
		{40, 80, 2},
		{80, 80, 2},
		{81, 80, 3},
		{200, 80, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, linesUsed(tt.length, tt.width), "%d@%d", tt.length, tt.width)
	}
}

func TestClearPreviousLines(t *testing.T) {
	var buf bytes.Buffer
	ClearPreviousLines(&buf, 10)
	assert.Equal(t, 2, strings.Count(buf.String(), "\x1b[2K"))
	assert.Equal(t, 1, strings.Count(buf.String(), "\x1b[1A"))
}

func TestReadSecretFromPipe(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("stdin is a terminal")
	}
	got, err := ReadSecret("token: ", strings.NewReader("s3cret\n"))
	assert.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}
