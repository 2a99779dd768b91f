// Command molecule compiles constraint schemas and runs scenarios against
// schema-checked graphs.
package main

import (
	"os"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := cli.NewRootCommand().Execute(); err != nil {
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
