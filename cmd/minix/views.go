package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"minix/internal/app"
	"minix/internal/synccache"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show storage usage by category and top-level folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Dashboard")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Dashboard(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Storage: %.1f of %.0f GB used (%d%%)\n\n", d.Storage.UsedGB, d.Storage.TotalGB, d.Storage.Percent)
		for _, c := range d.Categories {
			fmt.Printf("%-10s  %5d files  %10s  %3d%%\n", c.Category, c.Count, formatSize(c.Bytes), c.Percent)
		}
		fmt.Printf("%-10s  %5d files  %10s\n", "total", d.Total.Count, formatSize(d.Total.Bytes))

		if len(d.Folders) > 0 {
			fmt.Println("\nFolders:")
			for _, f := range d.Folders {
				fmt.Printf("  %-30s  %4d items  updated %s\n", f.Folder.Name, f.Items, f.LastUpdateLabel)
			}
		}
		if len(d.Recent) > 0 {
			fmt.Println("\nRecent:")
			for _, r := range d.Recent {
				fmt.Printf("  %-30s  %s\n", r.File.Name, r.File.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
		}
		return nil
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently uploaded files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RecentFiles")
		if err != nil {
			return err
		}
		defer a.Close()

		recent, err := a.RecentFiles(cmd.Context())
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			fmt.Println("No files.")
			return nil
		}
		for _, r := range recent {
			fmt.Printf("%-36s  %s  %-30s  %s\n", r.File.ID, r.File.CreatedAt.Local().Format("2006-01-02 15:04"), r.File.Name, r.URL)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the operation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [FOLDER_ID]",
	Short: "Follow a folder listing as it changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx, "Watch")
		if err != nil {
			return err
		}
		defer a.Close()
		if !a.SharedFeed() {
			fmt.Fprintln(os.Stderr, "warning: the memory feed only carries changes made by this process; configure redis or amqp to follow other clients")
		}

		return a.Watch(ctx, argOrRoot(args), func(s app.WatchState) {
			switch s.State {
			case synccache.Ready:
				fmt.Printf("--- %s ---\n", time.Now().Format(time.TimeOnly))
				printEntries(s.Entries)
			case synccache.Uninitialized:
				if s.Err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", s.Err)
				}
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(watchCmd)
}
