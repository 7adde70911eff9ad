package main

import "github.com/emiliopalmerini/elabgate/internal/cli"

func main() {
	cli.Execute()
}
