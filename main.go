package main

import (
	"os"

	"github.com/fakturo/fakturo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
