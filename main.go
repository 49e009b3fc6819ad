// Package main is the entry point for the fastgate packet classifier.
package main

import (
	"fmt"
	"os"

	"github.com/nivex/fastgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
