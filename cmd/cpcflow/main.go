// Command cpcflow runs typed self-expanding dataflow networks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/cpcflow/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}
	// Commands report their own ExitErrors; flag and argument errors
	// from cobra are printed here.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
