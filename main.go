package main

import (
	"os"

	"github.com/engramdev/engram/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
