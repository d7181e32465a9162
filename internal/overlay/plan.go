// Package overlay computes and applies a directory overlay: the files
// from a source directory replace their same-named counterparts in a
// destination directory without disturbing anything else the destination
// holds. Deletions of destination-only files are opt-in via prune.
//
// The overlay tracks the content of regular files only: symlinks and other
// special entries are skipped, and a change in file mode alone does not
// register as a difference.
package overlay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileOp describes a single file operation in a plan. Paths are relative
// to the overlay root so plans stay readable in logs and run records.
type FileOp struct {
	RelPath string
	Hash    string
}

// Plan is the computed difference between a source tree and the matching
// portion of a destination tree.
type Plan struct {
	Add    []FileOp
	Update []FileOp
	Delete []FileOp
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Add) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Total returns the number of operations in the plan.
func (p *Plan) Total() int {
	return len(p.Add) + len(p.Update) + len(p.Delete)
}

// BuildPlan walks srcDir and compares every regular file against the same
// relative path under dstDir. Identical content (by SHA256) produces no
// operation. When prune is set, files present under dstDir but absent from
// srcDir are scheduled for deletion; otherwise they are left alone.
func BuildPlan(srcDir, dstDir string, prune bool) (*Plan, error) {
	plan := &Plan{
		Add:    make([]FileOp, 0),
		Update: make([]FileOp, 0),
		Delete: make([]FileOp, 0),
	}

	desired := make(map[string]string) // relPath -> source hash

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}

		srcHash, err := fileHash(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
		desired[relPath] = srcHash

		dstPath := filepath.Join(dstDir, relPath)
		dstHash, err := fileHash(dstPath)
		switch {
		case os.IsNotExist(err):
			plan.Add = append(plan.Add, FileOp{RelPath: relPath, Hash: srcHash})
		case err != nil:
			return fmt.Errorf("hash %s: %w", dstPath, err)
		case dstHash != srcHash:
			plan.Update = append(plan.Update, FileOp{RelPath: relPath, Hash: srcHash})
		}
		// equal hashes: unchanged, no operation
		return nil
	})
	if err != nil {
		return nil, err
	}

	if prune {
		err := filepath.WalkDir(dstDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path == dstDir {
					return filepath.SkipAll
				}
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			relPath, err := filepath.Rel(dstDir, path)
			if err != nil {
				return fmt.Errorf("relative path for %s: %w", path, err)
			}
			if _, exists := desired[relPath]; !exists {
				plan.Delete = append(plan.Delete, FileOp{RelPath: relPath})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return plan, nil
}

// fileHash computes the SHA256 hash of a file.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
