// Package gitrepo provides a client for the Git operations gitmirror needs:
// cloning the destination branch and the source reference into a workspace,
// staging, committing, and pushing mirror changes.
//
// This package handles:
//   - Repository cloning with authentication (SSH, token, basic)
//   - Source reference resolution (branch, tag, or commit SHA)
//   - Staging and conditional commit (no-op when the worktree is clean)
//   - Push with typed rejection errors
//   - Retry logic for transient transport failures
package gitrepo
