// Command pure-api reads collections and the change feed of a Pure instance
// and writes records as newline-delimited JSON.
//
// Exit codes: 0 success, 1 other failure, 2 configuration or usage error,
// 3 HTTP error from Pure, 4 transport error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/pure-api-client/pkg/client"
	"github.com/Sternrassler/pure-api-client/pkg/config"
	"github.com/Sternrassler/pure-api-client/pkg/registry"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitConfig    = 2
	exitHTTP      = 3
	exitTransport = 4
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	defer a.close()

	cmd := a.rootCmd()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

// usageError marks invalid flags, arguments and configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var (
		usageErr   *usageError
		httpErr    *client.HTTPError
		requestErr *client.RequestError
	)
	switch {
	case errors.As(err, &usageErr),
		errors.Is(err, registry.ErrInvalidVersion),
		errors.Is(err, registry.ErrInvalidCollection),
		errors.Is(err, client.ErrMissingDomain),
		errors.Is(err, client.ErrMissingKey),
		errors.Is(err, client.ErrInvalidProtocol),
		errors.Is(err, config.ErrNoRedis):
		return exitConfig
	case errors.As(err, &httpErr):
		return exitHTTP
	case errors.As(err, &requestErr):
		return exitTransport
	default:
		return exitFailure
	}
}
