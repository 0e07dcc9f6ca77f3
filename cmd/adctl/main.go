package main

import (
	"os"

	"github.com/adworks/ad-portal/cmd/adctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
