// Command csvmap maps a delimited file onto a column schema from the
// command line: parse, pick the header row, auto-map, validate and export.
package main

import (
	"fmt"
	"os"

	"github.com/JonMunkholm/csvmapper/internal/apperr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if apperr.IsUserFacing(err) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", apperr.FormatUserError(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
