package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newRememberCmd(load func() (*app, error)) *cobra.Command {
	var (
		user     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "remember <text>",
		Short: "Store a reminder for a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			id, err := a.reminders.Insert(cmd.Context(), user, strings.Join(args, " "), interval)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved reminder id=%d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "owning user id (required)")
	cmd.Flags().DurationVarP(&interval, "every", "e", 0, "repeat interval, 0 for a one-shot reminder")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newForgetCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a reminder by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.reminders.Delete(cmd.Context(), uint(id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted reminder id=%d\n", id)
			return nil
		},
	}
}

func newMemoriesCmd(load func() (*app, error)) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "memories",
		Short: "List reminders, for one user or for everyone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			users := []string{user}
			if user == "" {
				if users, err = a.reminders.Users(cmd.Context()); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, u := range users {
				list, err := a.reminders.List(cmd.Context(), u)
				if err != nil {
					return err
				}
				for _, r := range list {
					fmt.Fprintf(out, "%s\tid=%d\tinterval=%ds\tnext=%s\t%s\n",
						u, r.ID, r.IntervalSeconds, r.NextDue().In(a.cfg.LocalTimezone).Format(time.RFC3339), r.Content)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "only list this user's reminders")
	return cmd
}

func newCycleCmd(load func() (*app, error)) *cobra.Command {
	var facts bool

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one reminder cycle now, optionally followed by a fact cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			sched, err := a.scheduler()
			if err != nil {
				return err
			}

			result, err := sched.RunCycle(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reminders: due=%d notified=%d failed=%d\n", result.Due, result.Notified, result.Failed)

			if !facts {
				return nil
			}
			factResult, err := sched.RunFactCycle(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "facts: users=%d pushed=%d failed=%d\n", factResult.Users, factResult.Pushed, factResult.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&facts, "facts", false, "also extract facts and push them")
	return cmd
}
