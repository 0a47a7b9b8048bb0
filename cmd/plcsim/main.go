// Command plcsim runs the PLC I/O and ladder-logic scan engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/plcsim/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
