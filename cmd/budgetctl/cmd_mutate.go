package main

import (
	"fmt"

	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/dvloznov/budgetctl/internal/mutation"
	"github.com/dvloznov/budgetctl/internal/patch"
	"github.com/spf13/cobra"
)

// fieldCommand describes a mutation command whose patch is fixed once its
// leading value arguments are known.
type fieldCommand struct {
	use    string
	short  string
	values int
	fields func(values []string) (patch.Fields, error)
}

var fieldCommands = []fieldCommand{
	{
		use:   "approve SELECTOR...",
		short: "Approve transactions",
		fields: func([]string) (patch.Fields, error) {
			return patch.Fields{Approved: patch.Set(true)}, nil
		},
	},
	{
		use:   "unapprove SELECTOR...",
		short: "Mark transactions as unapproved",
		fields: func([]string) (patch.Fields, error) {
			return patch.Fields{Approved: patch.Set(false)}, nil
		},
	},
	{
		use:    "flag COLOR SELECTOR...",
		short:  "Flag transactions (red, orange, yellow, green, blue, purple)",
		values: 1,
		fields: func(v []string) (patch.Fields, error) {
			return patch.Fields{FlagColor: patch.Set(domain.FlagColor(v[0]))}, nil
		},
	},
	{
		use:   "unflag SELECTOR...",
		short: "Remove the flag of transactions",
		fields: func([]string) (patch.Fields, error) {
			return patch.Fields{FlagColor: patch.Null[domain.FlagColor]()}, nil
		},
	},
	{
		use:    "categorize CATEGORY_ID SELECTOR...",
		short:  "Assign a category to transactions",
		values: 1,
		fields: func(v []string) (patch.Fields, error) {
			return patch.Fields{CategoryID: patch.Set(v[0])}, nil
		},
	},
	{
		use:    "memo TEXT SELECTOR...",
		short:  "Set the memo of transactions; an empty TEXT clears it",
		values: 1,
		fields: func(v []string) (patch.Fields, error) {
			if v[0] == "" {
				return patch.Fields{Memo: patch.Null[string]()}, nil
			}
			return patch.Fields{Memo: patch.Set(v[0])}, nil
		},
	},
	{
		use:    "clear STATUS SELECTOR...",
		short:  "Set the cleared status (cleared, uncleared, reconciled)",
		values: 1,
		fields: func(v []string) (patch.Fields, error) {
			return patch.Fields{Cleared: patch.Set(domain.ClearedStatus(v[0]))}, nil
		},
	},
	{
		use:    "amount AMOUNT SELECTOR...",
		short:  "Set the amount of transactions, e.g. -12.34",
		values: 1,
		fields: func(v []string) (patch.Fields, error) {
			m, err := domain.ParseMilliunits(v[0])
			if err != nil {
				return patch.Fields{}, err
			}
			return patch.Fields{Amount: patch.Set(m)}, nil
		},
	},
	{
		use:    "move ACCOUNT_ID SELECTOR...",
		short:  "Move transactions to another account",
		values: 1,
		fields: func(v []string) (patch.Fields, error) {
			return patch.Fields{AccountID: patch.Set(v[0])}, nil
		},
	},
}

func newMutationCmds(a *app) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(fieldCommands)+2)
	for _, fc := range fieldCommands {
		cmds = append(cmds, newFieldCmd(a, fc))
	}
	return append(cmds, newNegateCmd(a), newDeleteCmd(a))
}

func newFieldCmd(a *app, fc fieldCommand) *cobra.Command {
	return &cobra.Command{
		Use:   fc.use,
		Short: fc.short,
		Args:  cobra.MinimumNArgs(fc.values + 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := fc.fields(args[:fc.values])
			if err != nil {
				return err
			}
			if err := fields.Validate(); err != nil {
				return fmt.Errorf("%s: %w", cmd.Name(), err)
			}
			return a.applyFields(a.context(cmd.Context()), cmd.Name(), args[fc.values:], fields)
		},
	}
}

func newNegateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "negate SELECTOR...",
		Short: "Flip the sign of transaction amounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.context(cmd.Context())
			return a.mutate(ctx, cmd.Name(), args, func(ids []string) ([]mutation.Result, error) {
				return a.mut.MutateMany(ctx, ids, func(tx domain.Transaction) (patch.Fields, error) {
					return patch.Fields{Amount: patch.Set(-tx.Amount)}, nil
				}, mutation.Options{DryRun: a.dryRun})
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SELECTOR...",
		Short: "Delete transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.context(cmd.Context())
			return a.mutate(ctx, cmd.Name(), args, func(ids []string) ([]mutation.Result, error) {
				return a.mut.DeleteMany(ctx, ids, mutation.Options{DryRun: a.dryRun})
			})
		},
	}
}
