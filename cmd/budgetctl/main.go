// Command budgetctl selects ledger transactions and applies bulk changes that
// can be undone later.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/budgetctl/internal/history"
	"github.com/dvloznov/budgetctl/internal/mutation"
	"github.com/dvloznov/budgetctl/internal/refs"
	"github.com/dvloznov/budgetctl/internal/resilient"
	"github.com/spf13/cobra"
)

func main() {
	a := &app{out: os.Stdout, now: time.Now}
	root := newRootCmd(a, a.setup)
	defer a.close()

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		a.close()
		os.Exit(1)
	}
}

// hintFor returns a follow-up suggestion for errors the user can act on.
func hintFor(err error) string {
	switch {
	case errors.Is(err, refs.ErrNotFound):
		return "Hint: run 'budgetctl list' again and use the new references."
	case errors.Is(err, resilient.ErrCredentialsExhausted):
		return "Hint: add more API tokens to the configuration or retry later."
	case errors.Is(err, mutation.ErrPrecondition):
		return "Hint: nothing was changed; remove the offending transaction from the selection."
	case errors.Is(err, history.ErrAlreadyReverted):
		return "Hint: run 'budgetctl history' to find the action that undid it."
	}
	return ""
}

// newRootCmd builds the command tree. setup runs before every command and is
// replaced in tests.
func newRootCmd(a *app, setup func(globalFlags) error) *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Bulk edit budget transactions with undo",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/budgetctl/config.yaml)")
	root.PersistentFlags().StringVar(&flags.budgetID, "budget", "", "budget ID (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "compute changes without writing them")

	root.AddCommand(
		newBudgetsCmd(a),
		newAccountsCmd(a),
		newCategoriesCmd(a),
		newPayeesCmd(a),
		newListCmd(a),
		newResolveCmd(a),
	)
	root.AddCommand(newMutationCmds(a)...)
	root.AddCommand(
		newUndoCmd(a),
		newHistoryCmd(a),
	)
	return root
}
