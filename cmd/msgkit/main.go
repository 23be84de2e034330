package main

import (
	"fmt"
	"os"

	"github.com/drblury/msgkit/internal/cli"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	_ "github.com/drblury/msgkit/transport/transports"
)

func main() {
	err := cli.Execute()
	code := errspkg.ExitCode(err)
	if code == errspkg.ExitFailure {
		fmt.Fprintln(os.Stderr, errspkg.Format(err))
	}
	os.Exit(code)
}
