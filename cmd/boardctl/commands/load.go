package commands

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type loadStats struct {
	attempts  atomic.Uint64
	failures  atomic.Uint64
	snapshots atomic.Uint64
	changes   atomic.Uint64
}

func (c *CLI) newLoadCmd() *cobra.Command {
	var (
		conns    int
		duration time.Duration
		maxFail  float64
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Hold many /stream connections open and count the frames they receive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if conns <= 0 {
				return fmt.Errorf("--connections must be greater than zero")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			stats := &loadStats{}
			url := strings.TrimRight(c.addr, "/") + "/stream"
			client := &http.Client{}
			g, gctx := errgroup.WithContext(ctx)
			for range conns {
				g.Go(func() error {
					streamLoop(gctx, client, url, stats)
					return nil
				})
			}
			_ = g.Wait()

			attempts, failures := stats.attempts.Load(), stats.failures.Load()
			rate := 0.0
			if attempts > 0 {
				rate = float64(failures) / float64(attempts)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connections=%d duration=%s snapshots=%d changes=%d connection_failures=%d\n",
				conns, duration, stats.snapshots.Load(), stats.changes.Load(), failures)
			if stats.snapshots.Load() == 0 || rate > maxFail {
				return fmt.Errorf("load failed: %d snapshots, failure rate %.3f", stats.snapshots.Load(), rate)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&conns, "connections", "n", 200, "Concurrent stream connections")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 2*time.Minute, "How long to hold the connections")
	cmd.Flags().Float64Var(&maxFail, "max-failure-rate", 0.01, "Highest tolerated share of failed connection attempts")
	return cmd
}

// streamLoop reconnects until ctx is done, counting frames by event name.
func streamLoop(ctx context.Context, client *http.Client, url string, stats *loadStats) {
	backoff := time.Second
	retry := func() bool {
		stats.failures.Add(1)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 5*time.Second)
		return true
	}
	for ctx.Err() == nil {
		stats.attempts.Add(1)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			if !retry() {
				return
			}
			continue
		}
		resp, err := client.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			if resp != nil {
				resp.Body.Close()
			}
			if ctx.Err() != nil || !retry() {
				return
			}
			continue
		}
		backoff = time.Second
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4<<20)
		for scanner.Scan() {
			name, ok := strings.CutPrefix(scanner.Text(), "event: ")
			if !ok {
				continue
			}
			if name == "tasks" {
				stats.snapshots.Add(1)
			} else {
				stats.changes.Add(1)
			}
		}
		resp.Body.Close()
		if ctx.Err() != nil || !retry() {
			return
		}
	}
}
