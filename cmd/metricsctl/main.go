// Command metricsctl computes wallet metrics from the command line, either
// from saved exchange payloads or live from the Hyperliquid API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
