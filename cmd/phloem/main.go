package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/phloem-sh/phloem/internal/infrastructure/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := cli.Options{Verbose: isVerbose()}
	root, closer := cli.NewRootCmd(ctx, opts)
	defer func() {
		if err := closer(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func isVerbose() bool {
	return strings.EqualFold(os.Getenv("PHLOEM_DEBUG"), "1") || strings.EqualFold(os.Getenv("PHLOEM_DEBUG"), "true")
}
