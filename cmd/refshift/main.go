// This is the main entry point for the refshift CLI.
// Build with: go build -o bin/refshift ./cmd/refshift
// Usage: refshift <command> [options]
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
