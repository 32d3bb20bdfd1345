// assembly-polisher drives a resumable draft-assembly polishing
// pipeline over external alignment, consensus and stitching tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"assembly-polisher/internal/bootstrap"
	"assembly-polisher/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log.SetFlags(0)
	log.SetPrefix("assembly-polisher: ")

	// Flags are parsed before the app is built so -h and usage errors
	// never depend on the settings file or the environment.
	cfg, err := cli.Parse(args, bootstrap.SettingsOrDefaults(), os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 1
	}

	app, err := bootstrap.New()
	if err != nil {
		log.Printf("bootstrap: %v", err)
		return 1
	}

	// An interrupt terminates the current stage's child process and the
	// whole run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Preflight(ctx, cfg.OutputDir); err != nil {
		log.Printf("%v", err)
		return 1
	}

	result, err := app.RunPolish(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	if len(result.Executed) == 0 {
		log.Printf("all outputs up to date, nothing to do")
	}
	fmt.Printf("Polished assembly written to %s\n", result.ConsensusPath)
	return 0
}
