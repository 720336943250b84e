// Command kairos runs discrete-event simulations and benchmarks the event
// queue backends.
package main

import (
	"github.com/kairos-sim/kairos/kairos/cmd"
)

func main() {
	cmd.Execute()
}
