// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the kqlnb CLI.
package main

import (
	"kqlnb/cli/cmd"
)

func main() {
	cmd.Execute()
}
