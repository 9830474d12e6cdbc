// no-doze is the per-user client: it runs the configured inhibiting-condition
// checks and reports inhibition requests to the no-dozed daemon.
package main

import "github.com/ericghara/no-doze/internal/cli"

func main() {
	cli.Execute()
}
