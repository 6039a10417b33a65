package main

import (
	"os"

	"github.com/iambrandonn/nlsh/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
