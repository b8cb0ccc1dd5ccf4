package main

import (
	"context"
	"fmt"
	"os"

	"github.com/crf-paris15/crf.tools/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "lockcrf-server:", err)
		os.Exit(1)
	}
}
