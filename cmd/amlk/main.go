// Command amlk runs scenarios against the AML class library kernel,
// checks validation policies and inspects change journals.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/amlkernel/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
