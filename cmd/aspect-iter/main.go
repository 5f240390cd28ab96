// Command aspect-iter groups preserved web resources into articles.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/aspect-iter/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
