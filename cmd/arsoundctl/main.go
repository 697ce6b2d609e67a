package main

import (
	"os"
)

func main() {
	if err := newRootCommand(newRuntime).Execute(); err != nil {
		os.Exit(1)
	}
}
