// Command tally serves and runs plain-text ledger reports.
package main

import (
	"fmt"
	"os"

	"github.com/seantiz/tally/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		os.Exit(1)
	}
}
