package overlay

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Apply executes the plan, copying from srcDir into dstDir. Copies are
// atomic: content lands in a temp file next to the target, then renamed
// into place so a crash never leaves a half-written file.
func Apply(plan *Plan, srcDir, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	for _, op := range plan.Add {
		slog.Debug("Adding file", slog.String("path", op.RelPath))
		if err := copyFile(filepath.Join(srcDir, op.RelPath), filepath.Join(dstDir, op.RelPath)); err != nil {
			return fmt.Errorf("failed to add file %s: %w", op.RelPath, err)
		}
	}

	for _, op := range plan.Update {
		slog.Debug("Updating file", slog.String("path", op.RelPath))
		if err := copyFile(filepath.Join(srcDir, op.RelPath), filepath.Join(dstDir, op.RelPath)); err != nil {
			return fmt.Errorf("failed to update file %s: %w", op.RelPath, err)
		}
	}

	for _, op := range plan.Delete {
		slog.Debug("Deleting file", slog.String("path", op.RelPath))
		if err := os.Remove(filepath.Join(dstDir, op.RelPath)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete file %s: %w", op.RelPath, err)
		}
	}

	return nil
}

// copyFile copies src to dst with an atomic temp-and-rename write,
// preserving the source file mode.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".gitmirror-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	srcInfo, err := srcFile.Stat()
	if err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(srcInfo.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}
