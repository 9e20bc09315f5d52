// Command jarvis is the personal knowledge pipeline CLI.
package main

import (
	"fmt"
	"os"

	"github.com/custodia-labs/jarvis/internal/adapters/driving/cli"
)

func main() {
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
