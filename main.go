package main

import (
	"os"

	"github.com/conneroisu/assetforge/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
