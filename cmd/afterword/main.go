package main

import (
	"os"

	"github.com/afterword/afterword/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
