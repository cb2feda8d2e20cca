package main

import (
	"fmt"
	"os"

	"github.com/thiagokokada/gitk-compare/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "gitk-compare: %v\n", err)
		os.Exit(1)
	}
}
