package main

import (
	"errors"
	"fmt"

	"github.com/dvloznov/budgetctl/internal/archive"
	"github.com/dvloznov/budgetctl/internal/history"
	"github.com/spf13/cobra"
)

func newUndoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undo [ACTION_ID]",
		Short: "Undo the latest action, or the given one",
		Long: "Undo replays the inverse of a journaled action. The undo is journaled " +
			"as well, so running undo again redoes the original change.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAPI(); err != nil {
				return err
			}
			ctx := a.context(cmd.Context())

			var action history.Action
			var err error
			if len(args) == 1 {
				action, err = a.history.Get(ctx, args[0])
			} else {
				action, err = a.history.Latest(ctx)
			}
			if err != nil {
				return err
			}

			outcome, actionID, err := a.undo(ctx, action)
			if outcome == nil {
				return err
			}
			if perr := a.print(undoOutput{ActionID: actionID, RevertedID: action.ID, DryRun: a.dryRun, Outcome: outcome}); perr != nil {
				return errors.Join(err, perr)
			}
			return err
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled actions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := a.history.List(a.context(cmd.Context()))
			if err != nil {
				return err
			}
			if actions == nil {
				actions = []history.Action{}
			}
			return a.print(actions)
		},
	}
	cmd.AddCommand(newHistoryExportCmd(a), newHistoryImportCmd(a))
	return cmd
}

func newHistoryExportCmd(a *app) *cobra.Command {
	var bucket, object string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Upload the journal to Cloud Storage as JSON Lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.context(cmd.Context())
			if bucket == "" {
				if err := a.cfg.RequireArchive(); err != nil {
					return err
				}
				bucket = a.cfg.Archive.Bucket
			}
			if object == "" {
				object = archive.ObjectName(a.cfg.BudgetID, a.now())
			}

			actions, err := a.history.List(ctx)
			if err != nil {
				return err
			}
			if a.dryRun {
				a.log.Info().Int("actions", len(actions)).Str("uri", archive.URI(bucket, object)).Msg("[DRY RUN] Would export history")
				return a.print(map[string]any{"uri": archive.URI(bucket, object), "actions": len(actions), "dry_run": true})
			}
			uri, err := archive.ExportHistory(ctx, a.uploader, actions, bucket, object)
			if err != nil {
				return err
			}
			return a.print(map[string]any{"uri": uri, "actions": len(actions)})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "destination bucket (default from config)")
	cmd.Flags().StringVar(&object, "object", "", "destination object name")
	return cmd
}

func newHistoryImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import GS_URI",
		Short: "Merge an exported journal into the local one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.context(cmd.Context())
			actions, err := archive.ImportHistory(ctx, a.uploader, args[0])
			if err != nil {
				return err
			}

			imported := 0
			for _, action := range actions {
				_, err := a.history.Get(ctx, action.ID)
				if err == nil {
					continue
				}
				if !errors.Is(err, history.ErrNotFound) {
					return err
				}
				if a.dryRun {
					imported++
					continue
				}
				if _, err := a.history.Append(ctx, action); err != nil {
					return fmt.Errorf("importing %s: %w", action.ID, err)
				}
				imported++
			}
			return a.print(map[string]any{"read": len(actions), "imported": imported, "dry_run": a.dryRun})
		},
	}
}
