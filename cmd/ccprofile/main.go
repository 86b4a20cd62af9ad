// Command ccprofile wraps an interactive AI coding CLI with zero-
// configuration tracing, dispatching subcommands via a plain stdlib
// flag-plus-switch shape.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "exec":
		err = runExec(os.Args[2:])
	case "hook":
		err = runHook(os.Args[2:])
	case "report":
		err = runReport(os.Args[2:])
	case "attach":
		err = runAttach(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "ccprofile: unknown subcommand %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "ccprofile:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: ccprofile <command> [flags]

commands:
  exec     launch the host CLI under tracing
  hook     run as the registered hook orchestrator (invoked by the host)
  report   materialize report.html from an existing trace
  attach   tail a running trace
  init     print the settings.json stanza to register the hook orchestrator`)
}
