// Command rspd serves a trace-replay debug stub over GDB's Remote Serial
// Protocol, grounded on cmd/dlv's cobra-based CLI tree.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

// run builds the command tree and executes it, mirroring dlv main.go's
// pattern of threading an exit status out through a package-level
// variable set by whichever subcommand handler actually runs (cobra's
// Execute itself only reports argument-parsing errors).
func run() int {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitStatus
}
