// Command lcspsim builds a node's port table from a YAML configuration and
// drives synthetic traffic through it.
package main

import (
	"github.com/soypat/lcsp/internal/sim"
)

var version = "dev"

func main() {
	sim.Version = version
	sim.Execute(sim.NewRootCommand())
}
