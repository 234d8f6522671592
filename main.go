// The main package for the warka executable.
package main

import (
	"github.com/warka/warka/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
