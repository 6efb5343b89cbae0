package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// main wires the converter CLI. Conversion logic lives in internal/pipeline.
func main() {
	cmd := newRootCommand(afero.NewOsFs())
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
