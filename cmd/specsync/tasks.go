package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/eventbus"
	"github.com/sddkit/specsync/internal/types"
	"github.com/sddkit/specsync/internal/ui"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage a spec's tasks",
	}
	cmd.AddCommand(newTasksAddCmd(), newTasksListCmd(), newTasksDoneCmd())
	return cmd
}

func newTasksAddCmd() *cobra.Command {
	var (
		description string
		priority    int
	)

	cmd := &cobra.Command{
		Use:   "add <spec-id> <title>",
		Short: "Add a task to a spec",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := context.Background()

			spec, err := resolveSpec(ctx, a.store, args[0])
			if err != nil {
				return err
			}

			task := &types.Task{
				SpecID:      spec.ID,
				Title:       args[1],
				Description: description,
				Priority:    priority,
			}
			if err := a.store.CreateTask(ctx, task); err != nil {
				return err
			}

			if _, err := a.bus.Publish(ctx, eventbus.NewTaskCreated(spec.ID, task.ID, task.Title)); err != nil {
				return err
			}

			fmt.Printf("%s task %d added to %s\n", ui.RenderPass(ui.IconPass), task.ID, spec.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Task description")
	cmd.Flags().IntVarP(&priority, "priority", "p", 2, "Priority, 0 (highest) to 4")
	return cmd
}

func newTasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <spec-id>",
		Short: "List a spec's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := context.Background()

			spec, err := resolveSpec(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			tasks, err := a.store.ListTasksBySpec(ctx, spec.ID)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println(ui.RenderMuted("no tasks"))
				return nil
			}

			for _, task := range tasks {
				status := string(task.Status)
				if task.Status == types.StatusDone {
					status = ui.RenderPass(status)
				} else {
					status = ui.RenderMuted(status)
				}
				line := fmt.Sprintf("%4d  [%s]  %s", task.ID, status, task.Title)
				if task.SubIssueNumber != nil {
					line += ui.RenderMuted(fmt.Sprintf("  (#%d)", *task.SubIssueNumber))
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newTasksDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <task-id>",
		Short: "Mark a task done and close its sub-issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := context.Background()

			task, err := a.store.GetTask(ctx, taskID)
			if err != nil {
				return err
			}

			// Without a linked sub-issue this is a purely local completion.
			if task.SubIssueNumber == nil {
				if err := a.store.UpdateTaskStatus(ctx, taskID, types.StatusDone); err != nil {
					return err
				}
				fmt.Printf("%s task %d done\n", ui.RenderPass(ui.IconPass), taskID)
				return nil
			}

			result, err := a.svc.HandleTaskCompletion(ctx, taskID)
			if err != nil {
				return err
			}

			fmt.Printf("%s task %d done, sub-issue #%d closed\n",
				ui.RenderPass(ui.IconPass), taskID, *task.SubIssueNumber)
			if result.ParentClosed {
				fmt.Println(ui.RenderPass("  all sub-issues complete; parent issue closed"))
			}
			if out := ui.RenderWarnings(result.Warnings); out != "" {
				fmt.Print(out)
			}

			if _, err := a.bus.Publish(ctx, eventbus.NewTaskCompleted(task.SpecID, taskID, task.Title)); err != nil {
				return err
			}
			return nil
		},
	}
}
