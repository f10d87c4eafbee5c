package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
)

func newFileCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newRestoreCommand(ctx),
		newPinCommand(ctx, true),
		newPinCommand(ctx, false),
		newIdleCommand(ctx),
	}
}

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <placeholder-id>",
		Short: "Restore an archived file from its placeholder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			res, err := app.Restore.Restore(cmd.Context(), "", id)
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s (file %d, %s)\n", res.Path, res.FileID, formatBytes(res.Size))
			if !res.ArtifactRemoved {
				fmt.Fprintln(cmd.OutOrStdout(), "Warning: archive artifact could not be removed")
			}
			return nil
		},
	}
}

func newPinCommand(ctx *commandContext, pin bool) *cobra.Command {
	use, short := "pin", "Exempt files from automatic archiving"
	if !pin {
		use, short = "unpin", "Make pinned files eligible for archiving again"
	}

	return &cobra.Command{
		Use:   use + " <user> <file-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]biz.FileID, 0, len(args)-1)
			for _, arg := range args[1:] {
				id, err := parseFileID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			user := biz.UserID(args[0])
			var res *biz.PinResult
			if pin {
				res = app.Access.Pin(cmd.Context(), user, ids)
			} else {
				res = app.Access.Unpin(cmd.Context(), user, ids)
			}
			if ctx.json {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d succeeded, %d failed\n", use, len(res.Succeeded), len(res.Failed))
			for _, id := range res.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  failed: %d\n", id)
			}
			return nil
		},
	}
}

func newIdleCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var olderThan time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "idle",
		Short: "List unpinned files ordered by last access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			q := biz.IdleQuery{Owner: biz.UserID(owner), Limit: limit}
			if olderThan > 0 {
				q.Before = time.Now().UTC().Add(-olderThan)
			}
			records, err := app.Access.ListIdle(cmd.Context(), q)
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, idleView(records))
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No idle files")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					strconv.FormatInt(int64(rec.FileID), 10),
					string(rec.OwnerID),
					rec.LastAccessed.Format(time.RFC3339),
					humanize.Time(rec.LastAccessed),
				})
			}
			printTable(cmd, []string{"File", "Owner", "Last Accessed", "Idle"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft})
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only list files of this account")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only list files idle for longer than this duration")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of rows")
	return cmd
}

type idleRecord struct {
	FileID       biz.FileID `json:"file_id"`
	OwnerID      biz.UserID `json:"owner_id"`
	LastAccessed time.Time  `json:"last_accessed"`
}

func idleView(records []*biz.AccessRecord) []idleRecord {
	out := make([]idleRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, idleRecord{FileID: rec.FileID, OwnerID: rec.OwnerID, LastAccessed: rec.LastAccessed})
	}
	return out
}

func parseFileID(s string) (biz.FileID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid file id %q", s)
	}
	return biz.FileID(id), nil
}
