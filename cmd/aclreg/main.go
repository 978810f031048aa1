// Command aclreg runs and inspects an ACL registry process.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/aclreg/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
