// Command mrctl drives a MapReduce-shaped agent job through Setup, Map,
// Reduce and Merge. See internal/cli for command definitions.
package main

import (
	"os"

	"github.com/abz10m/mrctl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
