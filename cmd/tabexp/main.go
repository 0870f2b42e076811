// Command tabexp runs tabular regression experiments and inspects their
// recorded runs.
package main

import (
	"fmt"
	"os"

	"github.com/tabexp-labs/tabexp/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
