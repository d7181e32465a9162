package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.skarv.dev/infra/gitmirror/internal/auth"
	"git.skarv.dev/infra/gitmirror/internal/logfields"
	"github.com/go-git/go-git/v5"
	gconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitOptions controls the identity and message of a mirror commit.
type CommitOptions struct {
	AuthorName  string
	AuthorEmail string
	Message     string
}

// CommitResult reports what CommitAndPush did.
type CommitResult struct {
	Committed bool
	Hash      string
}

// CommitAndPush stages everything in the worktree, commits if the tree is
// dirty, and pushes the branch. A clean worktree returns Committed=false
// with no error: no upstream change is a normal outcome for a mirror run.
func (c *Client) CommitAndPush(ctx context.Context, repoPath string, spec RepoSpec, branch string, opts CommitOptions) (CommitResult, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return CommitResult{}, fmt.Errorf("open repo: %w", err)
	}
	wt, err := repository.Worktree()
	if err != nil {
		return CommitResult{}, fmt.Errorf("worktree: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return CommitResult{}, fmt.Errorf("stage changes: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return CommitResult{}, fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		slog.Info("Worktree clean, nothing to commit", logfields.Path(repoPath))
		return CommitResult{Committed: false}, nil
	}

	signature := &object.Signature{
		Name:  opts.AuthorName,
		Email: opts.AuthorEmail,
		When:  time.Now(),
	}
	hash, err := wt.Commit(opts.Message, &git.CommitOptions{
		Author:    signature,
		Committer: signature,
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit: %w", err)
	}
	slog.Info("Created commit", logfields.Commit(shortHash(hash)), logfields.Branch(branch))

	if err := c.push(ctx, repository, spec, branch); err != nil {
		return CommitResult{Committed: true, Hash: hash.String()}, err
	}
	return CommitResult{Committed: true, Hash: hash.String()}, nil
}

func (c *Client) push(ctx context.Context, repository *git.Repository, spec RepoSpec, branch string) error {
	authMethod, err := auth.CreateAuth(spec.Auth)
	if err != nil {
		return fmt.Errorf("failed to setup authentication: %w", err)
	}

	refSpec := gconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	pushOnce := func() (struct{}, error) {
		err := repository.PushContext(ctx, &git.PushOptions{
			RemoteName: "origin",
			RefSpecs:   []gconfig.RefSpec{refSpec},
			Auth:       authMethod,
		})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return struct{}{}, nil
		}
		if err != nil {
			return struct{}{}, classifyPushError(spec.URL, branch, err)
		}
		return struct{}{}, nil
	}

	if _, err = withRetry(c, "push", branch, pushOnce); err != nil {
		return err
	}
	slog.Info("Pushed branch", logfields.URL(spec.URL), logfields.Branch(branch))
	return nil
}
