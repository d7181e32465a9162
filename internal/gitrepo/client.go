package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.skarv.dev/infra/gitmirror/internal/auth"
	"git.skarv.dev/infra/gitmirror/internal/config"
	"git.skarv.dev/infra/gitmirror/internal/logfields"
	"git.skarv.dev/infra/gitmirror/internal/retry"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// RepoSpec identifies a remote repository for a clone operation.
type RepoSpec struct {
	Name string // checkout directory name inside the workspace
	URL  string
	Auth *config.AuthConfig
}

// Client handles Git operations inside a workspace directory.
type Client struct {
	workspaceDir string
	policy       retry.Policy
}

// NewClient creates a new Git client with the specified workspace directory.
func NewClient(workspaceDir string) *Client {
	return &Client{workspaceDir: workspaceDir, policy: retry.Policy{}}
}

// WithRetryPolicy attaches a retry policy to the client (fluent helper).
func (c *Client) WithRetryPolicy(p retry.Policy) *Client { c.policy = p; return c }

// CloneBranch clones a single branch of a repository into the workspace,
// keeping full history so the pre-commit diff check runs against the real
// last committed tree. Used for the destination acquisition.
func (c *Client) CloneBranch(ctx context.Context, spec RepoSpec, branch string) (string, error) {
	return c.withRetry("clone", spec.Name, func() (string, error) {
		return c.cloneBranchOnce(ctx, spec, branch)
	})
}

func (c *Client) cloneBranchOnce(ctx context.Context, spec RepoSpec, branch string) (string, error) {
	repoPath := filepath.Join(c.workspaceDir, spec.Name)
	slog.Debug("Cloning repository", logfields.URL(spec.URL), logfields.Branch(branch), logfields.Path(repoPath))

	if err := os.RemoveAll(repoPath); err != nil {
		return "", fmt.Errorf("failed to remove existing directory: %w", err)
	}

	cloneOptions := &git.CloneOptions{
		URL:           spec.URL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	}

	authMethod, err := auth.CreateAuth(spec.Auth)
	if err != nil {
		return "", fmt.Errorf("failed to setup authentication: %w", err)
	}
	cloneOptions.Auth = authMethod

	repository, err := git.PlainCloneContext(ctx, repoPath, false, cloneOptions)
	if err != nil {
		return "", classifyTransportError("clone", spec.URL, err)
	}

	if ref, herr := repository.Head(); herr == nil {
		slog.Info("Repository cloned",
			logfields.URL(spec.URL),
			logfields.Branch(branch),
			logfields.Commit(shortHash(ref.Hash())))
	}
	return repoPath, nil
}

// CloneRef clones a repository and checks out an arbitrary reference: branch,
// tag, or commit SHA. Used for the source acquisition, which is read-only.
func (c *Client) CloneRef(ctx context.Context, spec RepoSpec, ref string) (string, error) {
	return c.withRetry("clone", spec.Name, func() (string, error) {
		return c.cloneRefOnce(ctx, spec, ref)
	})
}

func (c *Client) cloneRefOnce(ctx context.Context, spec RepoSpec, ref string) (string, error) {
	repoPath := filepath.Join(c.workspaceDir, spec.Name)
	slog.Debug("Cloning repository", logfields.URL(spec.URL), logfields.Ref(ref), logfields.Path(repoPath))

	if err := os.RemoveAll(repoPath); err != nil {
		return "", fmt.Errorf("failed to remove existing directory: %w", err)
	}

	authMethod, err := auth.CreateAuth(spec.Auth)
	if err != nil {
		return "", fmt.Errorf("failed to setup authentication: %w", err)
	}

	// Full clone: the ref may name a tag or a commit that a single-branch
	// clone would not carry.
	repository, err := git.PlainCloneContext(ctx, repoPath, false, &git.CloneOptions{
		URL:  spec.URL,
		Auth: authMethod,
	})
	if err != nil {
		return "", classifyTransportError("clone", spec.URL, err)
	}

	if ref != "" {
		hash, err := resolveRef(repository, ref)
		if err != nil {
			return "", &NotFoundError{Op: "resolve", URL: spec.URL, Ref: ref, Err: err}
		}
		wt, err := repository.Worktree()
		if err != nil {
			return "", fmt.Errorf("worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
			return "", fmt.Errorf("checkout %s: %w", ref, err)
		}
		slog.Info("Repository cloned",
			logfields.URL(spec.URL),
			logfields.Ref(ref),
			logfields.Commit(shortHash(*hash)))
	}

	return repoPath, nil
}

// resolveRef rev-parses a ref against a full clone. Only the remote's default
// branch exists as a local ref after cloning; every other branch lives under
// refs/remotes/origin/, which ResolveRevision does not try on its own.
func resolveRef(repository *git.Repository, ref string) (*plumbing.Hash, error) {
	hash, err := repository.ResolveRevision(plumbing.Revision(ref))
	if err == nil {
		return hash, nil
	}
	if hash, rerr := repository.ResolveRevision(plumbing.Revision("refs/remotes/origin/" + ref)); rerr == nil {
		return hash, nil
	}
	return nil, err
}

// Head returns the current HEAD commit hash of a checkout.
func (c *Client) Head(repoPath string) (string, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	ref, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	return ref.Hash().String(), nil
}

func shortHash(h plumbing.Hash) string {
	s := h.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
