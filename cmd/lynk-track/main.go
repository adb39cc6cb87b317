package main

import (
	"os"

	"github.com/vincentbai/lynk-embed/cmd/lynk-track/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
