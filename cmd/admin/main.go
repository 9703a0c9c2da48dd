package main

import (
	"encoding/json"
	"fmt"
	"os"
)

const usage = `usage: admin <command> [flags]

commands:
  systems    list stored star systems, or print one with -name
  cargo      print the persisted cargo manifest
  state      fetch world state from a running daemon
  metrics    fetch daemon counters
  component  reload, enable or disable a monitor or responder`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "systems":
		systemsCmd(args)
	case "cargo":
		cargoCmd(args)
	case "state":
		getCmd("state", "/v1/state", args)
	case "metrics":
		getCmd("metrics", "/metrics", args)
	case "component":
		componentCmd(args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
