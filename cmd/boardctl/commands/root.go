// Package commands implements the boardctl CLI.
package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	"schedule-board/replica"
)

const defaultAddr = "http://localhost:5000"

// CLI is the boardctl command tree.
type CLI struct {
	logger  *log.Logger
	rootCmd *cobra.Command
	addr    string
	debug   bool
}

// New builds the command tree.
func New(logger *log.Logger) *CLI {
	c := &CLI{logger: logger}
	rootCmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "Edit and watch a shared schedule board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if c.debug {
				c.logger.SetLevel(log.DebugLevel)
			}
		},
	}
	addr := defaultAddr
	if v := os.Getenv("BOARD_ADDR"); v != "" {
		addr = v
	}
	rootCmd.PersistentFlags().StringVar(&c.addr, "addr", addr, "Board server base URL")
	rootCmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(c.newAddCmd())
	rootCmd.AddCommand(c.newDeleteCmd())
	rootCmd.AddCommand(c.newListCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newLoadCmd())
	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

func (c *CLI) client() (*replica.Client, error) {
	return replica.NewClient(c.addr, c.logger)
}
