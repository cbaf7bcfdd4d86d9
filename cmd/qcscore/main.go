package main

import (
	"os"

	"organoid-qc/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
