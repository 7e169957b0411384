// Command syncctl runs sync operations for one organization from the shell,
// against the same database and remote stores the server uses.
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
