// Package main provides the entry point for the lccn-predictor process.
package main

import (
	"os"

	"github.com/baoliay2008/lccn-predictor/cmd/lccn-predictor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
