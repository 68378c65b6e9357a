package main

import (
	"fmt"
	"os"

	"github.com/Borislavv/go-ash-dump/internal/cli/commands"
)

// Set by ldflags.
var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
