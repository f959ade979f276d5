// Command teimanager launches the embedding worker fleet manager: the gRPC
// multiplexer, the admin HTTP surface, and the supervisor loop that keeps
// worker subprocesses alive.
package main

import (
	"fmt"
	"os"

	"github.com/nazq/tei-manager-sub000/cmd/teimanager/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
