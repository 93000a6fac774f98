// Command pagecraft edits landing-page documents.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/pagecraft/cmd/pagecraft/commands"
)

const version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := commands.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
