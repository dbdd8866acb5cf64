package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"schedule-board/domain"
	"schedule-board/view"
)

func (c *CLI) newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the board once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			tasks, rev, err := cl.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				data, err := sonic.ConfigStd.MarshalIndent(tasks, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
				return err
			}
			c.logger.Debugf("board at rev %d", rev)
			return writeBoard(cmd.OutOrStdout(), tasks)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw mapping as JSON")
	return cmd
}

// writeBoard prints one row per chart interval.
func writeBoard(w io.Writer, tasks domain.Tasks) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND\tHOURS\tASSIGNED\tPRIORITY")
	for _, iv := range view.Build(tasks) {
		t := tasks[iv.TaskID]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			iv.TaskID, iv.Label, iv.X[0], iv.X[1], iv.Duration, t.AssignedTo, t.Priority)
	}
	return tw.Flush()
}
