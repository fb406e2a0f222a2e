// Package main implements lendingctl, a command line client for the book lending engine.
//
// Configuration is read from defaults, an optional YAML file (--config) and LENDING_ environment variables.
// All results are printed as JSON on stdout, logs go to stderr.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newApp(os.Stdout, os.Stderr)).Execute(); err != nil {
		os.Exit(1)
	}
}
