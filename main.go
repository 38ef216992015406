package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tonimelisma/shiftplan/internal/syncctl"
)

// exitConflict is the exit status for a write refused because the shared
// plan moved on; the conflict prompt has already been printed.
const exitConflict = 2

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, syncctl.ErrStaleWrite) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitConflict)
		}

		exitOnError(err)
	}
}
