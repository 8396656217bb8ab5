package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"storefront-checkout/internal/adapters/storage/postgres"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/core/domain"
)

func main() {
	var dsn string
	if cfg, err := config.Load("configs/config.yaml"); err == nil {
		dsn = cfg.Postgres.DSN
	}

	var rootCmd = &cobra.Command{Use: "ledger-tool", Short: "Inspect recorded game purchases", SilenceUsage: true}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", dsn, "PostgreSQL DSN")

	// Command to list a user's orders
	var ordersCmd = &cobra.Command{
		Use:   "orders",
		Short: "List orders of a user, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withRepository(cmd.Context(), dsn, func(ctx context.Context, repo *postgres.Repository) error {
				entries, err := repo.ListByUser(ctx, userID)
				if err != nil {
					return err
				}
				return printEntries(os.Stdout, entries)
			})
		},
	}
	ordersCmd.Flags().String("user", "", "User id")
	_ = ordersCmd.MarkFlagRequired("user")

	var ownsCmd = &cobra.Command{
		Use:   "owns USER_ID GAME_ID",
		Short: "Check whether a user has a completed order for a game",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), dsn, func(ctx context.Context, repo *postgres.Repository) error {
				owned, err := repo.HasPurchased(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), owned)
				return nil
			})
		},
	}

	// Support looks up orders by the processor reference shown to the customer.
	var findCmd = &cobra.Command{
		Use:   "find PROCESSOR_ORDER_ID",
		Short: "Find the order recorded for a processor order id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), dsn, func(ctx context.Context, repo *postgres.Repository) error {
				entry, err := repo.FindByProcessorOrder(ctx, args[0])
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("no order recorded for processor order %s", args[0])
				}
				return printEntries(os.Stdout, []domain.LedgerEntry{*entry})
			})
		},
	}

	rootCmd.AddCommand(ordersCmd, ownsCmd, findCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withRepository(ctx context.Context, dsn string, fn func(context.Context, *postgres.Repository) error) error {
	if dsn == "" {
		return fmt.Errorf("postgres DSN is not set, use --dsn or DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	repo, err := postgres.NewRepository(ctx, dsn)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(ctx, repo)
}

func printEntries(out io.Writer, entries []domain.LedgerEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ORDER ID\tUSER\tGAME\tAMOUNT\tMETHOD\tPROCESSOR ORDER\tCREATED AT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
			e.ID, e.UserID, e.ProductID,
			e.Amount.StringFixed(2), e.Currency,
			e.PaymentMethod, e.ProcessorOrderID,
			e.CreatedAt.Format(time.RFC3339),
		)
	}
	return w.Flush()
}
