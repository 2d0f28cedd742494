/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/taskdeck/apiserver/config"
	"github.com/taskdeck/apiserver/internal/db"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// adminCmd groups the operator reporting tools. They talk to the service
// database directly and are meant to be run next to a deployed instance.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator reports and maintenance",
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List all accounts with task counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
			reports, err := store.NewUserRepository(conn).ListWithTaskCounts(ctx)
			if err != nil {
				return err
			}

			w := newTable()
			fmt.Fprintln(w, "ID\tNAME\tMAIL\tTASKS\tSESSION")
			for _, report := range reports {
				session := "none"
				if report.User.SessionID != nil {
					session = shorten(*report.User.SessionID, 8)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					report.User.ID, report.User.Name, report.User.Mail, report.TaskCount, session)
			}
			return w.Flush()
		})
	},
}

var adminTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List all tasks with their owners, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
			reports, err := store.NewTaskRepository(conn).ListAll(ctx)
			if err != nil {
				return err
			}

			w := newTable()
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tOWNER\tCREATED")
			for _, report := range reports {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
					report.Task.ID, shorten(report.Task.Title, 30), report.Task.Status,
					report.Task.Priority, report.OwnerName,
					report.Task.CreatedAt.Format(time.DateOnly))
			}
			return w.Flush()
		})
	},
}

var adminUserCmd = &cobra.Command{
	Use:   "user <id>",
	Short: "Show one account and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
			user, err := store.NewUserRepository(conn).GetByID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load user %s: %w", args[0], err)
			}
			fmt.Printf("%s <%s> (%s)\n", user.Name, user.Mail, user.ID)

			tasks, err := store.NewTaskRepository(conn).List(ctx, user.ID, types.TaskFilter{Limit: 100})
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tDUE")
			for _, task := range tasks {
				due := "-"
				if task.DueDate != nil {
					due = task.DueDate.Format(time.DateTime)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
					task.ID, shorten(task.Title, 30), task.Status, task.Priority, due)
			}
			return w.Flush()
		})
	},
}

var adminStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show account and task counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
			total, guests, err := store.NewUserRepository(conn).CountUsers(ctx)
			if err != nil {
				return err
			}
			counts, err := store.NewTaskRepository(conn).CountByStatus(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("users: %d (%d guests)\n", total, guests)
			var tasks int64
			for _, count := range counts {
				tasks += count
			}
			fmt.Printf("tasks: %d (todo %d, in_progress %d, done %d)\n",
				tasks, counts[types.StatusTodo], counts[types.StatusInProgress], counts[types.StatusDone])
			return nil
		})
	},
}

var adminCleanGuestsCmd = &cobra.Command{
	Use:   "clean-guests",
	Short: "Delete all guest accounts and their tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
			removed, err := store.NewUserRepository(conn).DeleteGuests(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d guest accounts\n", removed)
			return nil
		})
	},
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	cfg := config.LoadConfig()
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	return fn(ctx, conn)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func shorten(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminUsersCmd)
	adminCmd.AddCommand(adminTasksCmd)
	adminCmd.AddCommand(adminUserCmd)
	adminCmd.AddCommand(adminStatsCmd)
	adminCmd.AddCommand(adminCleanGuestsCmd)
}
