// server runs the recruitment workflow API and its maintenance commands.
//
// Usage:
//
//	server serve [--config=<path>]
//	server migrate [--config=<path>]
//	server template import <file> --company=<id>
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
