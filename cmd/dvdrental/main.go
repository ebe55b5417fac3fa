package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desco95/dvdrental/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "dvdrental:", err)
		os.Exit(1)
	}
}
