//go:build linux

// testorigin-helper is a binary helper for E2E tests that runs inside a
// Docker container. It serves a small, deterministic HTTP origin from a JSON
// route table (stdin), standing in for the real target scanhound scans.
//
// This is a thin wrapper around the testorigin package's server logic: the
// binary is built on the host, bind-mounted into the container, and exec'd
// there by the test harness.
package main

import (
	"fmt"
	"os"

	"github.com/scanhound/scanhound/internal/testorigin"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: testorigin-helper serve <addr>")
	}

	switch os.Args[1] {
	case "serve":
		if len(os.Args) < 3 {
			fatalf("usage: testorigin-helper serve <addr>")
		}
		cmdServe(os.Args[2])
	default:
		fatalf("unknown command: %s (use 'serve')", os.Args[1])
	}
}

// cmdServe reads a RouteTable JSON from stdin and blocks serving it on addr.
func cmdServe(addr string) {
	if err := testorigin.ServeFromReader(os.Stdin, addr); err != nil {
		fatalf("serve: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "testorigin-helper: "+format+"\n", args...)
	os.Exit(1)
}
