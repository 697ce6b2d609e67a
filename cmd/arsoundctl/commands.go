package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/plans"
)

type runtimeFactory func() (*runtime, error)

func newRootCommand(connect runtimeFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "arsoundctl",
		Short:         "ARSOUND operator tools",
		Long:          `Operator commands for the ARSOUND marketplace: manual payment reconciliation, the webhook ledger, plans and API keys.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newReconcileCommand(connect),
		newEventsCommand(connect),
		newPlansCommand(),
		newReferenceCommand(),
		newUsersCommand(connect),
	)

	return rootCmd
}

func newReconcileCommand(connect runtimeFactory) *cobra.Command {
	var eventID uint
	cmd := &cobra.Command{
		Use:   "reconcile <paymentID>",
		Short: "Reconcile one payment",
		Long:  `Fetch the payment from MercadoPago and apply it. Safe to repeat: an already applied payment reports "duplicate".`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := connect()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			outcome, err := rt.billing.ProcessPayment(ctx, eventID, args[0])
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "payment %s: %s\n", args[0], outcome)
			return nil
		},
	}
	cmd.Flags().UintVar(&eventID, "event", 0, "Ledger entry to mark with the result")
	return cmd
}

func newEventsCommand(connect runtimeFactory) *cobra.Command {
	var (
		failed bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List webhook ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := connect()
			if err != nil {
				return err
			}
			events, err := rt.billing.ListEvents(cmd.Context(), failed, limit)
			if err != nil {
				return err
			}
			printEvents(cmd, events)
			return nil
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "Only entries whose last attempt failed")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	return cmd
}

func printEvents(cmd *cobra.Command, events []models.PaymentEvent) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPAYMENT\tTYPE\tSIGNED\tOUTCOME\tATTEMPTS\tERROR\tRECEIVED")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%d\t%s\t%s\n",
			e.ID, e.PaymentID, e.EventType, e.SignatureValid, e.Outcome, e.Attempts,
			e.ProcessingError, e.CreatedAt.UTC().Format(time.RFC3339))
	}
	w.Flush()
}

func newPlansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the plan table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLAN\tPRICE\tPACKS\tPER MONTH\tMAX PRICE\tMAX FILE\tCOMMISSION\tDISCOUNT\tEDIT DAYS\tPIN\tLINKS\tRETAIN")
			for _, l := range plans.NewRegistry().All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.2f%%\t%d%%\t%s\t%t\t%t\t%s\n",
					l.Plan, formatMinor(l.MonthlyPrice),
					unlimited(int64(l.MaxTotalPacks)), unlimited(int64(l.MaxPacksPerMonth)),
					unlimitedMinor(l.MaxPrice), unlimitedBytes(l.MaxFileSize),
					float64(l.CommissionBps)/100, l.MaxDiscountPercent,
					unlimited(int64(l.EditWindowDays)), l.CanPin, l.CanAddLinks,
					unlimited(int64(l.RetainOnDowngrade)))
			}
			return w.Flush()
		},
	}
}

func newReferenceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "External reference tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "parse <ref>",
		Short: "Decode an external reference into its purchase intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := billing.ParseReference(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kind:  %s\n", intent.Kind)
			fmt.Fprintf(out, "actor: %s\n", intent.ActorID)
			switch intent.Kind {
			case billing.IntentPack:
				fmt.Fprintf(out, "pack:  %s\n", intent.PackID)
			case billing.IntentPlan:
				fmt.Fprintf(out, "plan:  %s\n", intent.PlanKey)
			}
			return nil
		},
	})
	return cmd
}

func newUsersCommand(connect runtimeFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users and API keys",
	}

	var admin bool
	create := &cobra.Command{
		Use:   "create <name> <email>",
		Short: "Create a user and print its API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := connect()
			if err != nil {
				return err
			}
			u, err := models.CreateUser(args[0], args[1])
			if err != nil {
				return err
			}
			if admin {
				u.Role = models.ROLE_ADMIN
			}
			key, err := u.IssueAPIKey()
			if err != nil {
				return err
			}
			if err := rt.users.Create(u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\napi key: %s\n", u.ID, key)
			return nil
		},
	}
	create.Flags().BoolVar(&admin, "admin", false, "Grant the admin role")

	rotate := &cobra.Command{
		Use:   "rotate-key <email>",
		Short: "Issue a new API key, revoking the old one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := connect()
			if err != nil {
				return err
			}
			u, err := rt.users.GetByEmail(args[0])
			if err != nil {
				return fmt.Errorf("user %s: %w", args[0], err)
			}
			key, err := u.IssueAPIKey()
			if err != nil {
				return err
			}
			if err := rt.users.Update(u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "api key: %s\n", key)
			return nil
		},
	}

	cmd.AddCommand(create, rotate)
	return cmd
}

func unlimited(v int64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatInt(v, 10)
}

func unlimitedMinor(v int64) string {
	if v == 0 {
		return "-"
	}
	return formatMinor(v)
}

func unlimitedBytes(v int64) string {
	if v == 0 {
		return "-"
	}
	const mb = 1024 * 1024
	if v%(1024*mb) == 0 {
		return fmt.Sprintf("%dGB", v/(1024*mb))
	}
	return fmt.Sprintf("%dMB", v/mb)
}

// formatMinor renders minor units as ARS with two decimals.
func formatMinor(v int64) string {
	return fmt.Sprintf("$%d.%02d", v/100, v%100)
}
