package main

import (
	"os"

	"github.com/boddenberg/brokerflow-bfa-go/cmd/brokerctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
