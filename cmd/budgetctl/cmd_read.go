package main

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/dvloznov/budgetctl/internal/ynab"
	"github.com/spf13/cobra"
)

func newBudgetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "budgets",
		Short: "List budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAPI(); err != nil {
				return err
			}
			budgets, err := a.api.ListBudgets(a.context(cmd.Context()))
			if err != nil {
				return err
			}
			return a.print(budgets)
		},
	}
}

func newAccountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts of the budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAPI(); err != nil {
				return err
			}
			accounts, err := a.api.ListAccounts(a.context(cmd.Context()), a.cfg.BudgetID)
			if err != nil {
				return err
			}
			return a.print(accounts)
		},
	}
}

func newCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories of the budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAPI(); err != nil {
				return err
			}
			categories, err := a.api.ListCategories(a.context(cmd.Context()), a.cfg.BudgetID)
			if err != nil {
				return err
			}
			return a.print(categories)
		},
	}
}

func newPayeesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "payees",
		Short: "List payees of the budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAPI(); err != nil {
				return err
			}
			payees, err := a.api.ListPayees(a.context(cmd.Context()), a.cfg.BudgetID)
			if err != nil {
				return err
			}
			return a.print(payees)
		},
	}
}

// listedTransaction is a transaction with the reference leased for it.
type listedTransaction struct {
	Ref    string `json:"ref"`
	Amount string `json:"amount_display"`
	domain.Transaction
}

func newListCmd(a *app) *cobra.Command {
	var since, account string
	var unapproved, uncategorized bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions and lease short references for them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAPI(); err != nil {
				return err
			}
			ctx := a.context(cmd.Context())

			filter := ynab.TransactionFilter{AccountID: account}
			if since != "" {
				d, err := civil.ParseDate(since)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				filter.SinceDate = d
			}
			switch {
			case unapproved && uncategorized:
				return fmt.Errorf("--unapproved and --uncategorized are mutually exclusive")
			case unapproved:
				filter.Type = "unapproved"
			case uncategorized:
				filter.Type = "uncategorized"
			}

			txs, err := a.api.ListTransactions(ctx, a.cfg.BudgetID, filter)
			if err != nil {
				return err
			}
			ids := make([]string, len(txs))
			for i, tx := range txs {
				ids[i] = tx.ID
			}
			leased, err := a.refs.GetOrCreateRefs(ctx, ids, a.now(), a.cfg.LeaseDuration)
			if err != nil {
				return err
			}

			out := make([]listedTransaction, len(txs))
			for i, tx := range txs {
				out[i] = listedTransaction{Ref: leased[tx.ID], Amount: tx.Amount.String(), Transaction: tx}
			}
			return a.print(out)
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only transactions on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&account, "account", "", "only transactions of this account ID")
	cmd.Flags().BoolVar(&unapproved, "unapproved", false, "only unapproved transactions")
	cmd.Flags().BoolVar(&uncategorized, "uncategorized", false, "only uncategorized transactions")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve REF...",
		Short: "Print the transaction IDs behind references",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.context(cmd.Context())
			out := make(map[string]string, len(args))
			for _, ref := range args {
				id, err := a.refs.ResolveRef(ctx, ref, a.now(), a.cfg.LeaseDuration)
				if err != nil {
					return err
				}
				out[ref] = id
			}
			return a.print(out)
		},
	}
}
