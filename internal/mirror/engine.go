// Package mirror orchestrates a mirror run: fetch the source tree at its
// configured ref, overlay its target subdirectory onto a checkout of the
// destination branch, and commit and push only when content actually
// differs.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.skarv.dev/infra/gitmirror/internal/config"
	"git.skarv.dev/infra/gitmirror/internal/gitrepo"
	"git.skarv.dev/infra/gitmirror/internal/history"
	"git.skarv.dev/infra/gitmirror/internal/logfields"
	"git.skarv.dev/infra/gitmirror/internal/metrics"
	"git.skarv.dev/infra/gitmirror/internal/notify"
	"git.skarv.dev/infra/gitmirror/internal/overlay"
	"git.skarv.dev/infra/gitmirror/internal/retry"
	"git.skarv.dev/infra/gitmirror/internal/workspace"
)

// GitClient is the subset of git operations the engine needs. Satisfied by
// *gitrepo.Client; narrowed to an interface so tests can substitute fakes.
type GitClient interface {
	CloneRef(ctx context.Context, spec gitrepo.RepoSpec, ref string) (string, error)
	CloneBranch(ctx context.Context, spec gitrepo.RepoSpec, branch string) (string, error)
	CommitAndPush(ctx context.Context, repoPath string, spec gitrepo.RepoSpec, branch string, opts gitrepo.CommitOptions) (gitrepo.CommitResult, error)
}

// Result summarizes a completed mirror run.
type Result struct {
	RunID    string
	Outcome  metrics.OutcomeLabel
	Changed  bool
	Commit   string
	Added    int
	Updated  int
	Deleted  int
	Duration time.Duration
}

// Options carries the engine's optional collaborators. Zero values are
// valid: metrics default to noop, history and notifications are skipped
// when absent.
type Options struct {
	DryRun       bool
	WorkspaceDir string
	Metrics      metrics.Recorder
	History      history.Store
	Notifier     notify.Publisher

	// GitFactory builds the git client for a run's workspace directory.
	// Defaults to gitrepo.NewClient with the configured retry policy.
	GitFactory func(workspaceDir string) GitClient
}

// Engine runs mirror jobs.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	opts   Options
}

// NewEngine creates a mirror engine.
func NewEngine(cfg *config.Config, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}
	if opts.GitFactory == nil {
		policy := retry.FromConfig(cfg.Retry)
		opts.GitFactory = func(dir string) GitClient {
			return gitrepo.NewClient(dir).WithRetryPolicy(policy)
		}
	}
	return &Engine{cfg: cfg, logger: logger, opts: opts}
}

// Run executes one complete mirror pass. A run that finds no content
// difference is a success with Changed=false, not an error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	result := &Result{RunID: uuid.NewString()}

	e.logger.Info("Starting mirror run",
		logfields.RunID(result.RunID),
		logfields.URL(e.cfg.Source.URL),
		logfields.Ref(e.cfg.Source.Ref),
		logfields.Path(e.cfg.Source.Path),
		slog.Bool("dry_run", e.opts.DryRun))

	err := e.run(ctx, result)
	result.Duration = time.Since(started)
	result.Outcome = e.outcome(result, err)

	if e.opts.DryRun {
		e.logger.Info("Dry-run complete, no changes applied", logfields.RunID(result.RunID))
		return result, err
	}

	e.finish(ctx, started, result, err)

	if err != nil {
		e.logger.Error("Mirror run failed",
			logfields.RunID(result.RunID),
			logfields.Outcome(string(result.Outcome)),
			logfields.Error(err))
		return result, err
	}

	e.logger.Info("Mirror run complete",
		logfields.RunID(result.RunID),
		logfields.Outcome(string(result.Outcome)),
		slog.Bool("changed", result.Changed),
		logfields.DurationMS(float64(result.Duration.Milliseconds())))
	return result, nil
}

func (e *Engine) run(ctx context.Context, result *Result) error {
	ws := workspace.NewManager(e.opts.WorkspaceDir)
	if err := ws.Create(); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			e.logger.Warn("Workspace cleanup failed", logfields.Error(err))
		}
	}()

	git := e.opts.GitFactory(ws.GetPath())

	srcSpec := gitrepo.RepoSpec{Name: "source", URL: e.cfg.Source.URL, Auth: e.cfg.Source.Auth}
	cloneStart := time.Now()
	srcPath, err := git.CloneRef(ctx, srcSpec, e.cfg.Source.Ref)
	e.opts.Metrics.ObserveCloneDuration("source", time.Since(cloneStart), err == nil)
	if err != nil {
		return fmt.Errorf("clone source: %w", err)
	}

	srcRoot := filepath.Join(srcPath, filepath.FromSlash(e.cfg.Source.Path))
	if info, err := os.Stat(srcRoot); err != nil || !info.IsDir() {
		return fmt.Errorf("source path %s not found in %s at %s", e.cfg.Source.Path, e.cfg.Source.URL, e.cfg.Source.Ref)
	}

	dstSpec := gitrepo.RepoSpec{Name: "destination", URL: e.cfg.Destination.URL, Auth: e.cfg.Destination.Auth}
	cloneStart = time.Now()
	dstPath, err := git.CloneBranch(ctx, dstSpec, e.cfg.Destination.Branch)
	e.opts.Metrics.ObserveCloneDuration("destination", time.Since(cloneStart), err == nil)
	if err != nil {
		return fmt.Errorf("clone destination: %w", err)
	}

	dstRoot := filepath.Join(dstPath, filepath.FromSlash(e.cfg.Destination.Path))
	plan, err := overlay.BuildPlan(srcRoot, dstRoot, e.cfg.Mirror.Prune)
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}

	e.logger.Info("Computed overlay plan",
		logfields.RunID(result.RunID),
		slog.Int("add", len(plan.Add)),
		slog.Int("update", len(plan.Update)),
		slog.Int("delete", len(plan.Delete)))

	if e.opts.DryRun {
		e.logPlanDetails(plan)
		result.Added = len(plan.Add)
		result.Updated = len(plan.Update)
		result.Deleted = len(plan.Delete)
		result.Changed = !plan.Empty()
		return nil
	}

	if plan.Empty() {
		e.logger.Info("Destination already up to date", logfields.RunID(result.RunID))
		return nil
	}

	if err := overlay.Apply(plan, srcRoot, dstRoot); err != nil {
		return fmt.Errorf("apply plan: %w", err)
	}

	commitResult, err := git.CommitAndPush(ctx, dstPath, dstSpec, e.cfg.Destination.Branch, gitrepo.CommitOptions{
		AuthorName:  e.cfg.Commit.AuthorName,
		AuthorEmail: e.cfg.Commit.AuthorEmail,
		Message:     e.cfg.Commit.Message,
	})
	if err != nil {
		var rejected *gitrepo.PushRejectedError
		if errors.As(err, &rejected) {
			e.opts.Metrics.IncPushFailure()
		}
		return fmt.Errorf("commit and push: %w", err)
	}

	if commitResult.Committed {
		result.Changed = true
		result.Commit = commitResult.Hash
		result.Added = len(plan.Add)
		result.Updated = len(plan.Update)
		result.Deleted = len(plan.Delete)
		e.opts.Metrics.IncCommits()
		e.opts.Metrics.AddFilesChanged("add", len(plan.Add))
		e.opts.Metrics.AddFilesChanged("update", len(plan.Update))
		e.opts.Metrics.AddFilesChanged("delete", len(plan.Delete))
	}
	return nil
}

func (e *Engine) outcome(result *Result, err error) metrics.OutcomeLabel {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	case err != nil:
		return metrics.OutcomeFailed
	case result.Changed:
		return metrics.OutcomeSuccess
	default:
		return metrics.OutcomeNoChange
	}
}

// finish records run telemetry. None of it may fail the run itself.
func (e *Engine) finish(ctx context.Context, started time.Time, result *Result, runErr error) {
	e.opts.Metrics.ObserveRunDuration(result.Duration)
	e.opts.Metrics.IncRunOutcome(result.Outcome)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	if e.opts.History != nil {
		record := history.Run{
			RunID:        result.RunID,
			StartedAt:    started,
			Duration:     result.Duration,
			Outcome:      string(result.Outcome),
			CommitSHA:    result.Commit,
			FilesAdded:   result.Added,
			FilesUpdated: result.Updated,
			FilesDeleted: result.Deleted,
			Error:        errMsg,
		}
		if err := e.opts.History.RecordRun(context.WithoutCancel(ctx), record); err != nil {
			e.logger.Warn("Failed to record run history", logfields.RunID(result.RunID), logfields.Error(err))
		}
	}

	if e.opts.Notifier != nil {
		event := &notify.RunEvent{
			RunID:        result.RunID,
			Outcome:      string(result.Outcome),
			CommitSHA:    result.Commit,
			FilesAdded:   result.Added,
			FilesUpdated: result.Updated,
			FilesDeleted: result.Deleted,
			DurationMS:   result.Duration.Milliseconds(),
			Error:        errMsg,
		}
		if err := e.opts.Notifier.PublishRun(context.WithoutCancel(ctx), event); err != nil {
			e.logger.Warn("Failed to publish run event", logfields.RunID(result.RunID), logfields.Error(err))
		}
	}
}

func (e *Engine) logPlanDetails(plan *overlay.Plan) {
	for _, op := range plan.Add {
		e.logger.Info("Would add file", logfields.Path(op.RelPath))
	}
	for _, op := range plan.Update {
		e.logger.Info("Would update file", logfields.Path(op.RelPath))
	}
	for _, op := range plan.Delete {
		e.logger.Info("Would delete file", logfields.Path(op.RelPath))
	}
}
