package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/models"
	"github.com/nvoitko/inkwell/internal/services"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Unlock the local vault with the master password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.userID == "" {
			return fmt.Errorf("no user id: pass --user or set INKWELL_USER")
		}

		fmt.Fprint(os.Stderr, "Master password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		if err := app.keys.UnlockWithPassword(cmd.Context(), app.userID, password); err != nil {
			if errors.Is(err, common.ErrWrongPassword) {
				return fmt.Errorf("wrong master password")
			}
			return fmt.Errorf("unlock: %w", err)
		}
		fmt.Println("Vault unlocked.")
		return nil
	},
}

var (
	listFolder   string
	listStarred  bool
	listTrash    bool
	listSort     string
	listOrderAsc bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached notes (revalidating in the background)",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := services.NotesQuery{
			SortBy: models.SortField(listSort),
		}
		if listOrderAsc {
			q.Order = models.SortAsc
		}
		if listFolder != "" {
			q.Filters.FolderID = &listFolder
		}
		if listStarred {
			t := true
			q.Filters.Starred = &t
		}
		deleted := listTrash
		q.Filters.Deleted = &deleted

		notes, err := app.notes.GetNotes(cmd.Context(), q)
		if err != nil {
			return err
		}
		if len(notes) == 0 {
			fmt.Println("No notes.")
			return nil
		}
		for _, n := range notes {
			title := n.Title
			if title == models.EncryptedSentinel {
				title = "(encrypted)"
			}
			fmt.Printf("%s  %s  %s\n", n.ID, n.UpdatedAt.Format("2006-01-02 15:04"), title)
		}
		return nil
	},
}

var (
	addTitle   string
	addContent string
	addFolder  string
	addPlain   bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a note (queued when offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.userID == "" {
			return fmt.Errorf("no user id: pass --user or set INKWELL_USER")
		}
		n, err := app.notes.CreateNote(cmd.Context(), services.NoteInput{
			Title:    addTitle,
			Content:  addContent,
			FolderID: addFolder,
			UserID:   app.userID,
			Encrypt:  !addPlain,
		})
		if err != nil {
			return err
		}
		if models.IsTempID(n.ID) {
			fmt.Printf("Created offline as %s (will sync).\n", n.ID)
		} else {
			fmt.Printf("Created %s.\n", n.ID)
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the pending mutation queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.sync.Drain(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("synced %d, failed %d, discarded %d, skipped %d\n",
			res.Synced, res.Failed, res.Discarded, res.Skipped)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and cache state",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := app.repos.Queue.ListPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("sync: %s, pending mutations: %d\n", app.sync.State(), len(items))
		for _, it := range items {
			line := fmt.Sprintf("  %s %s %s (retries %d)",
				it.Operation, it.ResourceType, it.ResourceID, it.RetryCount)
			if it.ErrorMessage != "" {
				line += ": " + strings.SplitN(it.ErrorMessage, "\n", 2)[0]
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listFolder, "folder", "", "filter by folder id")
	listCmd.Flags().BoolVar(&listStarred, "starred", false, "only starred notes")
	listCmd.Flags().BoolVar(&listTrash, "trash", false, "show trashed notes")
	listCmd.Flags().StringVar(&listSort, "sort", "updatedAt", "sort field: updatedAt|createdAt|title")
	listCmd.Flags().BoolVar(&listOrderAsc, "asc", false, "sort ascending")

	addCmd.Flags().StringVar(&addTitle, "title", "", "note title (required)")
	addCmd.Flags().StringVar(&addContent, "content", "", "note content")
	addCmd.Flags().StringVar(&addFolder, "folder", "", "folder id")
	addCmd.Flags().BoolVar(&addPlain, "plain", false, "skip client-side encryption")
	_ = addCmd.MarkFlagRequired("title")
}
