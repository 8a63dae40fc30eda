package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	bkerrors "bakekit/internal/errors"
	"bakekit/pkg/bakefile"
)

// Stage resolves the bakefile's source into a local directory ready for the
// copy-source stage. Local directories are copied to stagingDir; git URLs are
// cloned there. Staging is idempotent: the same source yields the same tree.
func Stage(ctx context.Context, src *bakefile.Source, stagingDir string) (string, error) {
	if src == nil {
		return "", fmt.Errorf("source cannot be nil")
	}

	// Fresh staging directory so repeated stagings are equivalent.
	if err := os.RemoveAll(stagingDir); err != nil {
		return "", fmt.Errorf("%w: failed to clear staging directory: %v", bkerrors.ErrSourceFailed, err)
	}
	if err := os.MkdirAll(stagingDir, 0750); err != nil {
		return "", fmt.Errorf("%w: failed to create staging directory: %v", bkerrors.ErrSourceFailed, err)
	}

	if IsGitURL(src.Path) {
		if err := cloneRepository(ctx, src, stagingDir); err != nil {
			return "", err
		}
		return stagingDir, nil
	}

	if _, err := os.Stat(src.Path); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: source directory not found: %s", bkerrors.ErrSourceFailed, src.Path)
	}

	if err := copyDirectory(src.Path, stagingDir); err != nil {
		return "", fmt.Errorf("%w: %v", bkerrors.ErrSourceFailed, err)
	}

	return stagingDir, nil
}

// IsGitURL reports whether a source path refers to a remote git repository.
func IsGitURL(path string) bool {
	return strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "git://") ||
		strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "ssh://")
}

// cloneRepository performs a shallow clone of the source repository into dir,
// optionally checking out a named branch or tag.
func cloneRepository(ctx context.Context, src *bakefile.Source, dir string) error {
	slog.Info("Cloning source repository", "url", src.Path, "ref", src.Ref)

	opts := &git.CloneOptions{
		URL:   src.Path,
		Depth: 1,
	}
	if src.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Ref)
		opts.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("%w: failed to clone %s: %v", bkerrors.ErrSourceFailed, src.Path, err)
	}

	// The .git directory is build metadata, not application source.
	if err := os.RemoveAll(filepath.Join(dir, ".git")); err != nil {
		return fmt.Errorf("%w: failed to strip git metadata: %v", bkerrors.ErrSourceFailed, err)
	}

	return nil
}

// copyDirectory recursively copies a directory from src to dst. The source
// may be any readable tree, relative paths included; only the destination is
// constrained to stay inside the staging root.
func copyDirectory(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
			return fmt.Errorf("file %s escapes the staging root", path)
		}

		destPath := filepath.Join(dst, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0750)
		}

		return copyFile(path, destPath)
	})
}

// copyFile copies a single file from src to dst.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}

	// Copy file permissions
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to get source file info: %w", err)
	}

	return os.Chmod(dst, srcInfo.Mode())
}
