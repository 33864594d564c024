package main

import (
	"github.com/Ethernal-Tech/token-bridge/cli"
)

func main() {
	cli.NewRootCommand().Execute()
}
