package main

import (
	"os"

	"github.com/Tyrowin/roomchat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
