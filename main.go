package main

import (
	"os"

	"github.com/fraclad/s3-insight/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
