// Package main is reviewctl, the operator CLI for the document review
// service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand(DefaultDeps()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
