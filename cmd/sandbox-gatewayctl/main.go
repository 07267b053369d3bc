// Command sandbox-gatewayctl is the operator CLI for inspecting and
// recovering a running gateway: read-only session/run listings and a
// break-glass proxy token minter for incident response.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/sandbox-gateway/cmd/sandbox-gatewayctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
