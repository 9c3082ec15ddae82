package main

import (
	"os"

	"github.com/azargarov/lazyload/cmd/lazyfetch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
