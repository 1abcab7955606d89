package main

import (
	"os"

	"github.com/zjrosen/noajax/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
