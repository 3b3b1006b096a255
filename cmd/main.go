package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err for the user. Build errors already carry the
// compiler log in their message.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
}
