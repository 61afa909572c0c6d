package main

import (
	"os"

	"github.com/JonMunkholm/memberimport/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
