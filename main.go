package main

import (
	"os"

	"github.com/distrl/hertrain/cmd"
)

func main() {
	if err := cmd.RootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
