package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvloznov/budgetctl/internal/archive"
	"github.com/dvloznov/budgetctl/internal/config"
	"github.com/dvloznov/budgetctl/internal/history"
	"github.com/dvloznov/budgetctl/internal/logger"
	"github.com/dvloznov/budgetctl/internal/mutation"
	"github.com/dvloznov/budgetctl/internal/patch"
	"github.com/dvloznov/budgetctl/internal/refs"
	"github.com/dvloznov/budgetctl/internal/resilient"
	"github.com/dvloznov/budgetctl/internal/revert"
	"github.com/dvloznov/budgetctl/internal/storage/badger"
	"github.com/dvloznov/budgetctl/internal/ynab"
	"github.com/rs/zerolog"
)

// app holds the collaborators of one invocation.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	out      io.Writer
	now      func() time.Time
	api      ynab.Client
	db       *badger.DB
	refs     *refs.Store
	history  *history.Store
	mut      *mutation.Engine
	rev      *revert.Engine
	uploader archive.Uploader
	dryRun   bool
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	budgetID   string
	logLevel   string
	dryRun     bool
}

// setup loads configuration and opens the datastore. The API client is built
// only when tokens are configured; commands that need it call requireAPI.
func (a *app) setup(flags globalFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.budgetID != "" {
		cfg.BudgetID = flags.budgetID
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.dryRun = flags.dryRun
	a.log = logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	dbCfg := badger.DefaultConfig(cfg.DataDir)
	dbCfg.Logger = a.log.With().Str("component", "badger").Logger().Level(zerolog.WarnLevel)
	db, err := badger.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}
	a.db = db

	if len(cfg.Tokens) > 0 {
		pool := resilient.NewCredentialPool(cfg.Tokens)
		httpClient := &http.Client{Timeout: 30 * time.Second, Transport: ynab.NewLoggingTransport(nil)}
		a.api = resilient.New(pool, func(token string) ynab.Client {
			return ynab.NewHTTPClient(token, ynab.WithBaseURL(cfg.BaseURL), ynab.WithHTTPClient(httpClient))
		})
	}
	a.uploader = archive.NewGCSUploader(cfg.Archive.CredentialsFile)
	a.wire()
	return nil
}

// wire builds the stores and engines over the already configured api and db.
func (a *app) wire() {
	budgetID := a.cfg.BudgetID
	a.refs = refs.New(a.db, budgetID, refs.WithChunkSize(a.cfg.RefChunkSize))
	a.history = history.New(a.db, budgetID)
	if a.api != nil {
		a.mut = mutation.New(a.api, budgetID)
		a.rev = revert.New(a.mut, a.api, budgetID)
	}
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close datastore")
		}
		a.db = nil
	}
}

func (a *app) context(ctx context.Context) context.Context {
	return logger.WithContext(ctx, a.log)
}

func (a *app) requireAPI() error {
	if a.api == nil {
		return a.cfg.RequireTokens()
	}
	return nil
}

// resolveSelectors maps each argument to a transaction ID. Arguments that
// could be a leased reference are looked up; anything else, such as a UUID or
// a scheduled-derived "<uuid>_<date>" ID, passes through unchanged.
func (a *app) resolveSelectors(ctx context.Context, args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		id := arg
		if refs.LooksLikeRef(arg) {
			var err error
			id, err = a.refs.ResolveRef(ctx, arg, a.now(), a.cfg.LeaseDuration)
			if err != nil {
				return nil, err
			}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// journal records the updated results of a command as a history action.
// Nothing is recorded for dry runs or when no transaction changed.
func (a *app) journal(ctx context.Context, command string, results []mutation.Result) (string, error) {
	if a.dryRun {
		return "", nil
	}
	action := history.Action{Command: command, CreatedAt: a.now().UTC()}
	for _, r := range results {
		if r.Status != mutation.StatusUpdated || r.Applied == nil || r.Inverse == nil {
			continue
		}
		action.Forward = append(action.Forward, *r.Applied)
		action.Inverse = append(action.Inverse, *r.Inverse)
	}
	if len(action.Forward) == 0 {
		return "", nil
	}
	saved, err := a.history.Append(ctx, action)
	if err != nil {
		return "", err
	}
	return saved.ID, nil
}

// undo reverts an action and journals the revert so it can be undone too.
//
// When the revert stops part way, the replayed entries are still journaled as
// an undo action and dropped from the original, which stays unreverted. The
// error is returned along with the partial outcome.
func (a *app) undo(ctx context.Context, action history.Action) (*revert.Outcome, string, error) {
	if action.Reverted() {
		return nil, "", fmt.Errorf("action %s: %w", action.ID, history.ErrAlreadyReverted)
	}

	var resolveErr error
	remapped := action.RemapIDs(a.history.Resolver(ctx, &resolveErr))
	if resolveErr != nil {
		return nil, "", resolveErr
	}

	outcome, revertErr := a.rev.Revert(ctx, remapped, mutation.Options{DryRun: a.dryRun})
	if outcome == nil {
		return nil, "", revertErr
	}
	if a.dryRun {
		return outcome, "", revertErr
	}

	actionID, err := a.recordUndo(ctx, action, outcome, revertErr != nil)
	if err != nil {
		return nil, "", errors.Join(revertErr, err)
	}
	return outcome, actionID, revertErr
}

func (a *app) recordUndo(ctx context.Context, action history.Action, outcome *revert.Outcome, partial bool) (string, error) {
	if err := a.history.RecordRemaps(ctx, outcome.Remaps()); err != nil {
		return "", err
	}

	var actionID string
	if !partial || len(outcome.Applied) > 0 {
		saved, err := a.history.Append(ctx, history.Action{
			Command:   "undo",
			CreatedAt: a.now().UTC(),
			Forward:   outcome.Applied,
			Inverse:   outcome.Inverse,
			RevertOf:  action.ID,
		})
		if err != nil {
			return "", err
		}
		actionID = saved.ID
	}

	if partial {
		a.log.Warn().
			Str("action_id", action.ID).
			Int("replayed", len(outcome.Results)).
			Int("remaining", len(action.Inverse)-len(outcome.Results)).
			Msg("Undo stopped early; undo this action ID again to finish")
		return actionID, a.history.DropReplayed(ctx, action.ID, len(outcome.Results))
	}
	return actionID, a.history.MarkReverted(ctx, action.ID, actionID)
}

// applyFields runs a static patch over the selected transactions.
func (a *app) applyFields(ctx context.Context, command string, args []string, fields patch.Fields) error {
	return a.mutate(ctx, command, args, func(ids []string) ([]mutation.Result, error) {
		return a.mut.ApplyPatch(ctx, ids, fields, mutation.Options{DryRun: a.dryRun})
	})
}

// mutate resolves the selectors, runs the mutation and journals what changed.
// A mutation that fails part way still journals the changes that went
// through before its error is returned.
func (a *app) mutate(ctx context.Context, command string, args []string, run func(ids []string) ([]mutation.Result, error)) error {
	if err := a.requireAPI(); err != nil {
		return err
	}
	ids, err := a.resolveSelectors(ctx, args)
	if err != nil {
		return err
	}
	results, runErr := run(ids)
	if runErr != nil && len(results) == 0 {
		return runErr
	}
	actionID, err := a.journal(ctx, command, results)
	if err != nil {
		return errors.Join(runErr, err)
	}
	if err := a.print(mutationOutput{ActionID: actionID, DryRun: a.dryRun, Results: results}); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

type mutationOutput struct {
	ActionID string            `json:"action_id,omitempty"`
	DryRun   bool              `json:"dry_run,omitempty"`
	Results  []mutation.Result `json:"results"`
}

type undoOutput struct {
	ActionID   string          `json:"action_id,omitempty"`
	RevertedID string          `json:"reverted_id"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Outcome    *revert.Outcome `json:"outcome"`
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
