// Command policyctl is the thin signer-side CLI for the control bus: it
// builds, signs, and sends policy commands to policyd over its local
// Unix-domain socket.
package main

import (
	"fmt"
	"os"

	"github.com/controlbus/policyd/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
