// Package main is the entry point for the chimera service.
package main

import (
	"fmt"
	"os"

	"github.com/jonesrussell/north-cloud/chimera/cmd"
)

// version can be set at build time via -ldflags
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := cmd.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
