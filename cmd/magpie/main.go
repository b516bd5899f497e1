package main

import (
	"errors"
	"fmt"
	"os"
)

// Build variables - set by ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, errHelpRequested) {
		fmt.Print(usage(os.Args[0]))
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprint(os.Stderr, usage(os.Args[0]))
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
