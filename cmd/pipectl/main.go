package main

import (
	"fmt"
	"os"

	"github.com/ridewave/httppipe/internal/commands"
)

var version = "dev" // Will be set during build

func main() {
	rootCmd := commands.NewRootCommand(version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
