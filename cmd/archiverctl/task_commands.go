package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
)

func newTaskCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSweepCommand(ctx),
		newEvictCommand(ctx),
		newNotifyCommand(ctx),
	}
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Archive every unpinned file idle past the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			res, err := app.Scheduler.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, res)
			}
			printTable(cmd,
				[]string{"Processed", "Archived", "Skipped", "Orphaned", "Failed", "Archived Size"},
				[][]string{{
					itoa(res.Processed), itoa(res.Archived), itoa(res.Skipped),
					itoa(res.Orphaned), itoa(res.Failed), formatBytes(res.ArchivedBytes),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			)
			return nil
		},
	}
}

func newEvictCommand(ctx *commandContext) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Check account quotas and archive the oldest files of accounts over the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			var reports []*biz.EvictionReport
			if account != "" {
				report, err := app.Eviction.CheckAccount(cmd.Context(), biz.UserID(account))
				if err != nil {
					return err
				}
				if ctx.json {
					return writeJSON(cmd, report)
				}
				reports = []*biz.EvictionReport{report}
			} else {
				summary, err := app.Scheduler.Evict(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.json {
					return writeJSON(cmd, summary)
				}
				reports = summary.Reports
				fmt.Fprintf(cmd.OutOrStdout(), "Checked %d accounts, %d over threshold, %d failed, %d files archived\n",
					summary.AccountsChecked, summary.OverThreshold, summary.AccountsFailed, summary.Archived)
			}

			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No account needed eviction")
				return nil
			}
			printTable(cmd, evictionHeaders, evictionRows(reports), evictionAligns)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Only check this account")
	return cmd
}

var (
	evictionHeaders = []string{"Account", "Before", "After", "Archived", "Skipped", "Failed", "Warned", "Stop"}
	evictionAligns  = []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft}
)

func evictionRows(reports []*biz.EvictionReport) [][]string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		_, _, before := formatUsage(r.Before)
		_, _, after := formatUsage(r.After)
		stop := r.StopReason
		if stop == "" {
			stop = "-"
		}
		rows = append(rows, []string{
			string(r.User), before, after,
			itoa(r.Archived), itoa(r.Skipped), itoa(r.Failed),
			yesNo(r.WarningSent), stop,
		})
	}
	return rows
}

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Warn owners about files that will be archived soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			res, err := app.Scheduler.Notify(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, res)
			}
			printTable(cmd,
				[]string{"Candidates", "Notified", "Deduplicated", "Failed"},
				[][]string{{itoa(res.Candidates), itoa(res.Notified), itoa(res.Deduplicated), itoa(res.Failed)}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			)
			return nil
		},
	}
}
