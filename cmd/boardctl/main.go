// Command boardctl edits and watches a schedule board from the terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"schedule-board/cmd/boardctl/commands"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New()
	logger.SetOutput(os.Stderr)
	cli := commands.New(logger)
	cli.SetArgs(args)
	if err := cli.Execute(ctx); err != nil {
		logger.Error(err)
		return 1
	}
	return 0
}
