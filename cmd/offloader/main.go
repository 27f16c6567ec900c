// Package main is the entry point for the offloader CLI and server.
package main

import (
	"fmt"
	"os"

	"github.com/mediaoffload/offloader/cmd/offloader/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
