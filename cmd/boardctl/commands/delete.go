package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task; deleting a missing task is a no-op",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			existed, err := cl.DeleteTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if existed {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			} else {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s did not exist\n", args[0])
			}
			return err
		},
	}
}
