// The main package for the sitelens executable.
package main

import (
	"github.com/JakeFAU/sitelens/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
