package main

import (
	"os"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
