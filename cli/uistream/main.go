package main

import (
	"fmt"
	"os"

	uistreamcmder "github.com/papercomputeco/uistream/cmd/uistream"
)

func main() {
	cmd := uistreamcmder.NewUistreamCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
