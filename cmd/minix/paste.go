package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"minix/internal/drive"
)

// readContent reads paste content from path, or stdin when path is "" or "-".
func readContent(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	return string(b), nil
}

func expiryLabel(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

// paste command
var pasteCmd = &cobra.Command{
	Use:   "paste",
	Short: "Manage pastes",
}

var pasteCreateCmd = &cobra.Command{
	Use:   "create [FILE]",
	Short: "Create a paste from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		syntax, _ := cmd.Flags().GetString("syntax")
		folder, _ := cmd.Flags().GetString("folder")
		expires, _ := cmd.Flags().GetDuration("expires")

		src := ""
		if len(args) > 0 {
			src = args[0]
		}
		content, err := readContent(src)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "CreatePaste")
		if err != nil {
			return err
		}
		defer a.Close()

		in := drive.PasteInput{Title: title, Content: content, Syntax: syntax, FolderID: optionalID(folder)}
		if expires > 0 {
			t := time.Now().Add(expires)
			in.ExpiresAt = &t
		}
		p, err := a.CreatePaste(cmd.Context(), in)
		if err != nil {
			return fmt.Errorf("creating paste: %w", err)
		}
		fmt.Printf("Created paste %s (%s, expires %s)\n", p.ID, p.Name, expiryLabel(p.ExpiresAt))
		return nil
	},
}

var pasteGetCmd = &cobra.Command{
	Use:   "get PASTE_ID",
	Short: "Print a paste",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, _ := cmd.Flags().GetBool("meta")

		a, err := newApp(cmd.Context(), "GetPaste")
		if err != nil {
			return err
		}
		defer a.Close()
		if err := unlockIfNeeded(a); err != nil {
			return err
		}

		p, err := a.GetPaste(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if meta {
			fmt.Fprintf(os.Stderr, "# %s [%s] created %s, expires %s\n", p.Name, p.Syntax, p.CreatedAt.Local().Format(time.DateTime), expiryLabel(p.ExpiresAt))
		}
		fmt.Print(p.Content)
		return nil
	},
}

var pasteLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List pastes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "ListPastes")
		if err != nil {
			return err
		}
		defer a.Close()

		pastes, err := a.ListPastes(cmd.Context(), optionalID(folder), limit)
		if err != nil {
			return err
		}
		if len(pastes) == 0 {
			fmt.Println("No pastes.")
			return nil
		}
		for _, p := range pastes {
			fmt.Printf("%-36s  %-10s  %s  %s\n", p.ID, p.Syntax, p.CreatedAt.Local().Format("2006-01-02 15:04"), p.Name)
		}
		return nil
	},
}

var pasteEditCmd = &cobra.Command{
	Use:   "edit PASTE_ID",
	Short: "Change a paste's title, content, syntax, expiry or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		var upd drive.PasteUpdate
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			upd.Title = &v
		}
		if flags.Changed("syntax") {
			v, _ := flags.GetString("syntax")
			upd.Syntax = &v
		}
		if flags.Changed("content") {
			src, _ := flags.GetString("content")
			v, err := readContent(src)
			if err != nil {
				return err
			}
			upd.Content = &v
		}
		if flags.Changed("expires") {
			d, _ := flags.GetDuration("expires")
			t := time.Now().Add(d)
			upd.ExpiresAt = &t
		}
		upd.ClearExpiry, _ = flags.GetBool("no-expiry")
		if flags.Changed("folder") {
			v, _ := flags.GetString("folder")
			if id := optionalID(v); id != nil {
				upd.FolderID = id
			} else {
				upd.MoveToRoot = true
			}
		}

		a, err := newApp(cmd.Context(), "UpdatePaste")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.UpdatePaste(cmd.Context(), args[0], upd)
		if err != nil {
			return fmt.Errorf("updating paste: %w", err)
		}
		fmt.Printf("Updated paste %s (%s, expires %s)\n", f.ID, f.Name, expiryLabel(f.ExpiresAt))
		return nil
	},
}

var pasteRmCmd = &cobra.Command{
	Use:   "rm PASTE_ID",
	Short: "Delete a paste",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeletePaste")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeletePaste(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted paste %s\n", args[0])
		return nil
	},
}

var pasteShareCmd = &cobra.Command{
	Use:   "share PASTE_ID",
	Short: "Create a long-lived share link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "SharePaste")
		if err != nil {
			return err
		}
		defer a.Close()

		url, expires, err := a.SharePaste(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(url)
		fmt.Fprintf(os.Stderr, "expires %s\n", expires.Local().Format(time.DateTime))
		return nil
	},
}

func init() {
	pasteCmd.AddCommand(pasteCreateCmd)
	pasteCreateCmd.Flags().StringP("title", "t", "", "Title (default: Untitled)")
	pasteCreateCmd.Flags().StringP("syntax", "s", "", "Syntax highlighting hint (default: plaintext)")
	pasteCreateCmd.Flags().StringP("folder", "f", "", "Folder id (default: root)")
	pasteCreateCmd.Flags().Duration("expires", 0, "Expire after this long (default: never)")

	pasteCmd.AddCommand(pasteGetCmd)
	pasteGetCmd.Flags().Bool("meta", false, "Print title and expiry to stderr")

	pasteCmd.AddCommand(pasteLsCmd)
	pasteLsCmd.Flags().StringP("folder", "f", "", "Folder id (default: root)")
	pasteLsCmd.Flags().IntP("limit", "n", 10, "Maximum number of pastes")

	pasteCmd.AddCommand(pasteEditCmd)
	pasteEditCmd.Flags().StringP("title", "t", "", "New title")
	pasteEditCmd.Flags().StringP("syntax", "s", "", "New syntax hint")
	pasteEditCmd.Flags().StringP("content", "c", "", "Read new content from this file (- for stdin)")
	pasteEditCmd.Flags().Duration("expires", 0, "Expire after this long from now")
	pasteEditCmd.Flags().Bool("no-expiry", false, "Remove the expiry")
	pasteEditCmd.Flags().StringP("folder", "f", "", "Move to this folder id (root for the root)")
	pasteEditCmd.MarkFlagsMutuallyExclusive("expires", "no-expiry")

	pasteCmd.AddCommand(pasteRmCmd)
	pasteCmd.AddCommand(pasteShareCmd)

	rootCmd.AddCommand(pasteCmd)
}
