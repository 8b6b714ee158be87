package main

import (
	"os"

	vecindexcmder "github.com/papercomputeco/vecindex/cmd/vecindex"
)

func main() {
	cmd := vecindexcmder.NewVecindexCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
