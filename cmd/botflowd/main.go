// Command botflowd runs chat-bot workers for stored flow graphs and manages
// those graphs.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
