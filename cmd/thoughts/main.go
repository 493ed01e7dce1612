// thoughts keeps a ledger of what people say they sometimes think about.
// A daemon owns the ledger; every other command talks to it over a socket.
package main

import (
	"os"

	"github.com/corey/thoughts/cmd/thoughts/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
