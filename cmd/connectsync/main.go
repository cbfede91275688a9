// Package main is the entry point of connectsync, which exports contact flows
// from an instance's admin console into local JSON files and uploads them
// back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tcmartin/connectsync/pkg/connecterr"
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "connectsync"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(newApp(os.Stdin, os.Stdout, os.Stderr)).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, hint := range connecterr.Hints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
	}
	stop()
	os.Exit(connecterr.ExitCode(err))
}
