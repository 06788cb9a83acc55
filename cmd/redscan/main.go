package main

import (
	"errors"
	"os"

	"github.com/mgriffes/redscan/cmd/redscan/commands"
	"github.com/mgriffes/redscan/internal/broker"
)

// Exit code 2 means the gateway was unreachable, so a wrapper script
// can tell "gateway down" apart from an in-run failure.
func main() {
	if err := commands.Execute(); err != nil {
		if errors.Is(err, broker.ErrUnavailable) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
