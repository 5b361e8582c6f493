// file: cmd/cover-display/main.go
package main

import (
	"os"

	"cover-display/cmd/cover-display/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Cobra prints the error, so we just need to exit
		os.Exit(1)
	}
}
