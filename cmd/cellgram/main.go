// Command cellgram compiles cell grammars, evolves boards and verifies
// recorded runs.
package main

import (
	"os"

	"github.com/roach88/cellgram/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
