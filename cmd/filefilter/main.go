// filefilter runs files through a chain of external filter programs.
package main

import (
	"os"

	"github.com/hupe1980/filefilter/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
