package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
)

func newAccountCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and manage storage accounts",
	}
	cmd.AddCommand(newAccountListCommand(ctx))
	cmd.AddCommand(newAccountShowCommand(ctx))
	cmd.AddCommand(newAccountSetCommand(ctx))
	return cmd
}

type accountView struct {
	User      biz.UserID              `json:"user"`
	Quota     string                  `json:"quota"`
	Usage     biz.Usage               `json:"usage"`
	Ratio     float64                 `json:"ratio"`
	Decisions *biz.DecisionStatistics `json:"decisions,omitempty"`
}

func loadAccountView(cmd *cobra.Command, ctx *commandContext, user biz.UserID, withStats bool) (*accountView, error) {
	app, err := ctx.ensureApp()
	if err != nil {
		return nil, err
	}
	c := cmd.Context()

	quota, err := app.Catalog.QuotaString(c, user)
	if err != nil {
		return nil, err
	}
	usage, err := biz.UsageOf(c, app.Catalog, user)
	if err != nil {
		return nil, err
	}
	view := &accountView{User: user, Quota: quota, Usage: usage, Ratio: usage.Ratio()}
	if withStats {
		if view.Decisions, err = app.Notifications.Statistics(c, user); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func newAccountListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with their storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			users, err := app.Catalog.Accounts(cmd.Context())
			if err != nil {
				return err
			}

			views := make([]*accountView, 0, len(users))
			for _, u := range users {
				v, err := loadAccountView(cmd, ctx, u, false)
				if err != nil {
					return err
				}
				views = append(views, v)
			}
			if ctx.json {
				return writeJSON(cmd, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts")
				return nil
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				used, quota, ratio := formatUsage(v.Usage)
				rows = append(rows, []string{string(v.User), used, quota, ratio})
			}
			printTable(cmd, []string{"Account", "Used", "Quota", "Usage"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight})
			return nil
		},
	}
}

func newAccountShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user>",
		Short: "Show storage usage and notification decisions of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadAccountView(cmd, ctx, biz.UserID(args[0]), true)
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, v)
			}

			used, quota, ratio := formatUsage(v.Usage)
			fmt.Fprintf(cmd.OutOrStdout(), "Account: %s\n", v.User)
			fmt.Fprintf(cmd.OutOrStdout(), "Quota:   %s (%s)\n", quota, v.Quota)
			fmt.Fprintf(cmd.OutOrStdout(), "Used:    %s (%s)\n", used, ratio)

			if v.Decisions == nil || v.Decisions.Total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No decisions recorded")
				return nil
			}
			kinds := make([]string, 0, len(v.Decisions.Counts))
			for d := range v.Decisions.Counts {
				kinds = append(kinds, string(d))
			}
			sort.Strings(kinds)
			rows := make([][]string, 0, len(kinds))
			for _, k := range kinds {
				rows = append(rows, []string{k, fmt.Sprint(v.Decisions.Counts[biz.Decision(k)])})
			}
			printTable(cmd, []string{"Decision", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			return nil
		},
	}
}

func newAccountSetCommand(ctx *commandContext) *cobra.Command {
	var quota, email, name string

	cmd := &cobra.Command{
		Use:   "set <user>",
		Short: "Create or update an account record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("quota") && !cmd.Flags().Changed("email") && !cmd.Flags().Changed("name") {
				return errors.New("nothing to update: pass --quota, --email or --name")
			}
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			c := cmd.Context()
			user := biz.UserID(args[0])

			acc, err := app.Catalog.Account(c, user)
			if err != nil {
				return err
			}
			if acc == nil {
				acc = &models.Account{UserID: string(user)}
			}
			if cmd.Flags().Changed("quota") {
				acc.Quota = quota
			}
			if cmd.Flags().Changed("email") {
				acc.Email = email
			}
			if cmd.Flags().Changed("name") {
				acc.DisplayName = name
			}
			if err := app.Catalog.SaveAccount(c, acc); err != nil {
				return err
			}

			if ctx.json {
				return writeJSON(cmd, acc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s saved\n", acc.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&quota, "quota", "", `Quota string such as "10 GB" or "none"; empty resets to the default`)
	cmd.Flags().StringVar(&email, "email", "", "Notification email address")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	return cmd
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "token <user>",
		Short: "Issue an API access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			token, err := app.JWT.GenerateAccessToken(args[0], email)
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, map[string]string{"access_token": token})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	return cmd
}
