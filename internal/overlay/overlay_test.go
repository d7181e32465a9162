package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func relPaths(ops []FileOp) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.RelPath)
	}
	return out
}

func TestBuildPlanFreshDestination(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"manifest.yaml":  "version: 1\n",
		"sub/helper.py":  "print('hi')\n",
		"sub/deep/x.txt": "x",
	})

	plan, err := BuildPlan(src, dst, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"manifest.yaml", filepath.Join("sub", "helper.py"), filepath.Join("sub", "deep", "x.txt")}, relPaths(plan.Add))
	assert.Empty(t, plan.Update)
	assert.Empty(t, plan.Delete)
}

func TestBuildPlanIdenticalTrees(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	files := map[string]string{"a.txt": "same", "sub/b.txt": "also same"}
	writeTree(t, src, files)
	writeTree(t, dst, files)

	plan, err := BuildPlan(src, dst, true)
	require.NoError(t, err)
	assert.True(t, plan.Empty(), "identical trees must produce an empty plan")
}

func TestBuildPlanMixedOperations(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"unchanged.txt": "same",
		"changed.txt":   "new content",
		"added.txt":     "brand new",
	})
	writeTree(t, dst, map[string]string{
		"unchanged.txt": "same",
		"changed.txt":   "old content",
		"extra.txt":     "destination only",
	})

	plan, err := BuildPlan(src, dst, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"added.txt"}, relPaths(plan.Add))
	assert.Equal(t, []string{"changed.txt"}, relPaths(plan.Update))
	assert.Empty(t, plan.Delete, "without prune, destination-only files stay")
	assert.Equal(t, 2, plan.Total())
}

func TestBuildPlanPrune(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"keep.txt": "k"})
	writeTree(t, dst, map[string]string{"keep.txt": "k", "stale.txt": "s", "sub/stale2.txt": "s2"})

	plan, err := BuildPlan(src, dst, true)
	require.NoError(t, err)
	assert.Empty(t, plan.Add)
	assert.Empty(t, plan.Update)
	assert.ElementsMatch(t, []string{"stale.txt", filepath.Join("sub", "stale2.txt")}, relPaths(plan.Delete))
}

func TestBuildPlanSkipsGitDir(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a", ".git/config": "internal"})
	writeTree(t, dst, map[string]string{".git/HEAD": "ref: refs/heads/develop"})

	plan, err := BuildPlan(src, dst, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, relPaths(plan.Add))
	assert.Empty(t, plan.Delete, "git metadata must never enter a plan")
}

func TestBuildPlanMissingDestinationWithPrune(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})
	dst := filepath.Join(t.TempDir(), "does-not-exist-yet")

	plan, err := BuildPlan(src, dst, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, relPaths(plan.Add))
	assert.Empty(t, plan.Delete)
}

func TestApply(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"added.txt":       "brand new",
		"sub/changed.txt": "new content",
	})
	writeTree(t, dst, map[string]string{
		"sub/changed.txt": "old content",
		"stale.txt":       "s",
		"untouched.txt":   "leave me",
	})

	plan, err := BuildPlan(src, dst, true)
	require.NoError(t, err)
	require.NoError(t, Apply(plan, src, dst))

	added, err := os.ReadFile(filepath.Join(dst, "added.txt"))
	require.NoError(t, err)
	assert.Equal(t, "brand new", string(added))

	changed, err := os.ReadFile(filepath.Join(dst, "sub", "changed.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new content", string(changed))

	_, err = os.Stat(filepath.Join(dst, "stale.txt"))
	assert.True(t, os.IsNotExist(err), "pruned file must be removed")

	// untouched.txt matches nothing in the plan and was scheduled for
	// deletion only because prune was on; re-check the non-prune case.
	dst2 := t.TempDir()
	writeTree(t, dst2, map[string]string{"untouched.txt": "leave me"})
	plan2, err := BuildPlan(src, dst2, false)
	require.NoError(t, err)
	require.NoError(t, Apply(plan2, src, dst2))
	kept, err := os.ReadFile(filepath.Join(dst2, "untouched.txt"))
	require.NoError(t, err)
	assert.Equal(t, "leave me", string(kept))
}

func TestApplyPreservesMode(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	script := filepath.Join(src, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	plan, err := BuildPlan(src, dst, false)
	require.NoError(t, err)
	require.NoError(t, Apply(plan, src, dst))

	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestApplyIdempotent(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a", "sub/b.txt": "b"})

	plan, err := BuildPlan(src, dst, true)
	require.NoError(t, err)
	require.NoError(t, Apply(plan, src, dst))

	// A second pass over the same trees must find nothing to do.
	plan2, err := BuildPlan(src, dst, true)
	require.NoError(t, err)
	assert.True(t, plan2.Empty())
}
