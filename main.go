package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlexanderGrooff/uplaybook/cmd"
	"github.com/AlexanderGrooff/uplaybook/pkg"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		var argErr *pkg.ArgumentError
		var exitErr *pkg.ExitError
		switch {
		case errors.As(err, &argErr):
			if argErr.Usage != "" {
				fmt.Fprint(os.Stderr, argErr.Usage)
			}
			fmt.Fprintf(os.Stderr, "error: %s\n", argErr.Msg)
		case errors.As(err, &exitErr):
			// The exit task already printed its status line.
		default:
			fmt.Fprintln(os.Stderr, err)
		}
	}
	os.Exit(pkg.ExitCode(err))
}
