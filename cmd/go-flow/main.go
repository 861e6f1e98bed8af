/*
go-flow is a CLI for interacting with a process engine via HTTP.

Usage:

	go-flow [flags]
	go-flow [command]

Available Commands:

	completion       Generate the autocompletion script for the specified shell
	event            Query, follow and clear the event log
	help             Help about any command
	process          Create processes
	process-instance Manage and query process instances
	set-time         Set the engine's time
	task-run         Complete, cancel and query task runs
	version          Show version

Flags:

	    --debug              Log HTTP requests and responses
	-h, --help               help for go-flow
	    --timeout duration   Time limit for requests made by the HTTP client (default 40s)
	    --url string         HTTP server URL

Use "go-flow [command] --help" for more information about a command.
*/
package main

import (
	"os"

	"github.com/gclaussn/go-flow/cli"
)

var (
	version = "unknown-version"
)

func main() {
	cli := cli.New(version)
	os.Exit(cli.Execute())
}
