// Command amux is a terminal session multiplexer: it runs a background
// daemon that owns PTY-backed child processes, and a thin client that
// creates, lists, attaches to, and kills those sessions over a Unix
// socket.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "amux:", err)
		os.Exit(1)
	}
}
