package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/models"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(addBalanceCmd)

	migrateCmd.Flags().Bool("down", false, "Roll every migration back instead of applying")
	addBalanceCmd.Flags().String("note", "", "Description stored on the bonus row")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply (or with --down, roll back) the schema and queue tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		down, _ := cmd.Flags().GetBool("down")
		return migrateAll(cmd.Context(), cfg, !down, slog.Default())
	},
}

var addBalanceCmd = &cobra.Command{
	Use:   "add-balance USER_ID deposit|earning AMOUNT",
	Short: "Credit a user's balance with a completed bonus row",
	Args:  cobra.ExactArgs(3),
	RunE:  runAddBalance,
}

func runAddBalance(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	b := models.Balance(args[1])
	if !b.Valid() {
		return fmt.Errorf("balance must be deposit or earning, got %q", args[1])
	}
	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	note, _ := cmd.Flags().GetString("note")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := slog.Default()
	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	txn, err := a.wallet.AddBalance(cmd.Context(), userID, b, amount, note)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s +%s (%s)\n", txn.ID, b, txn.Amount, txn.Status)
	return nil
}
