// Command chartd serves a live stock chart: it polls the price API, keeps
// a merged series cache, computes indicator overlays and pushes updates to
// browsers over WebSocket.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
