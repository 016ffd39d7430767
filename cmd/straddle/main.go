// Command straddle runs the intraday index short straddle.
package main

import (
	"fmt"
	"os"

	"straddle-trader/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
