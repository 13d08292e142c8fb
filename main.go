// Command classlift is a thin entry point: all of the actual flag
// parsing and command wiring lives in cmd/classlift so that package
// stays importable on its own.
package main

import (
	"fmt"
	"os"

	"classlift/cmd/classlift"
)

func main() {
	if err := classlift.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
