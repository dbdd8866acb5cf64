package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"schedule-board/domain"
)

func (c *CLI) newAddCmd() *cobra.Command {
	var (
		task     domain.Task
		priority string
		deps     []string
		file     string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or overwrite a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file != "" {
				loaded, err := readTaskFile(cmd, file)
				if err != nil {
					return err
				}
				task = loaded
			} else {
				task.Priority = domain.Priority(priority)
				task.Dependencies = deps
			}
			if task.Priority != "" && !task.Priority.Valid() {
				c.logger.Warnf("unusual priority %q", task.Priority)
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			got, err := cl.AddTask(cmd.Context(), task)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", got.ID, got.Name)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&task.ID, "id", "", "Task id")
	f.StringVar(&task.Name, "name", "", "Task name")
	f.StringVar(&task.Description, "description", "", "Task description")
	f.StringVar(&task.StartTime, "start", "", "Start time, e.g. 2024-06-23T09:00")
	f.StringVar(&task.EndTime, "end", "", "End time")
	f.StringVar(&task.Equipment, "equipment", "", "Equipment used")
	f.StringVar(&task.AssignedTo, "assigned-to", "", "Assignee")
	f.StringVar(&priority, "priority", string(domain.PriorityMedium), "High, Medium or Low")
	f.StringSliceVar(&deps, "depends-on", nil, "Ids this task depends on")
	f.StringVarP(&file, "file", "f", "", "Read the task as JSON from a file, or - for stdin")
	return cmd
}

func readTaskFile(cmd *cobra.Command, file string) (domain.Task, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return domain.Task{}, err
	}
	var task domain.Task
	if err := sonic.Unmarshal(data, &task); err != nil {
		return domain.Task{}, fmt.Errorf("parse %s: %w", strings.TrimSpace(file), err)
	}
	return task, nil
}
