// ABOUTME: Entrypoint for the specd CLI, the transport-collaborator stand-in
// ABOUTME: that drives the event-sourced spec engine from a terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
