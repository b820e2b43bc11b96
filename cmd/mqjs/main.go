// Command mqjs is a JavaScript shell. It evaluates files and expressions,
// runs an interactive REPL, and serves sessions over HTTP and websockets.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
