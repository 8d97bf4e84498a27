// Command icrepl evaluates Candid scripts against an Internet Computer
// replica.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/icrepl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
