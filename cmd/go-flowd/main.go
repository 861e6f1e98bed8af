/*
go-flowd is a daemon, running a process engine that is accessible via HTTP.

Usage:

	-conf string
		read configuration from a YAML file - environment variables take precedence
	-list-conf
		list configuration
	-list-conf-opts
		list configuration options
	-version
		show version
*/
package main

import (
	"log"
	"os"

	"github.com/gclaussn/go-flow/daemon"
)

func main() {
	log.SetOutput(os.Stdout)

	code := daemon.Run(os.Args[1:])
	os.Exit(code)
}
