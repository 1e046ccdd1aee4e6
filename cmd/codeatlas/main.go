// Command codeatlas is the CLI for the CodeAtlas code retrieval engine.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/codeatlas/cmd/codeatlas/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
