package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"schedule-board/domain"
	"schedule-board/replica"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the board live, reprinting it on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			return c.watch(cmd, cl)
		},
	}
}

func (c *CLI) watch(cmd *cobra.Command, cl *replica.Client) error {
	// Only the latest mapping matters; older pending ones are replaced.
	changes := make(chan domain.Tasks, 1)
	r := replica.New(func(tasks domain.Tasks) {
		select {
		case <-changes:
		default:
		}
		changes <- tasks
	})

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return cl.Run(ctx, r)
	})
	g.Go(func() error {
		out := cmd.OutOrStdout()
		for {
			select {
			case <-ctx.Done():
				return nil
			case tasks := <-changes:
				fmt.Fprintf(out, "--- %d tasks (rev %d)\n", len(tasks), r.Rev())
				if err := writeBoard(out, tasks); err != nil {
					return err
				}
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
