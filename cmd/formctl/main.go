// Command formctl works with form definitions outside the server: it lists
// the forms of a metadata directory, prints the statements a save would
// run, and saves records into a local SQLite database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
