package main

import (
	"os"

	"github.com/tripnest/tripsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
