package main

import (
	"os"

	"shufflewriter/internal/cli"
)

func main() {
	code := cli.Execute(os.Args[1:])
	os.Exit(code)
}
