package runtime

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/zpdzap/sandpit/internal/snapshot"
)

// HostFS is a sandbox filesystem rooted at a host directory. Backends that
// expose the sandbox workspace as a host path (the local backend directly,
// the docker backend through a bind mount) share it.
type HostFS struct {
	Root string
}

// Resolve maps a project path to an absolute host path inside Root.
func (h HostFS) Resolve(path string) (string, error) {
	clean, err := snapshot.CleanPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathOutsideRoot, err)
	}
	full, err := securejoin.SecureJoin(h.Root, filepath.FromSlash(clean))
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return full, nil
}

// WriteTree writes every file of tree below Root. Existing files not in
// the tree are left alone, so dependency folders survive a remount.
func (h HostFS) WriteTree(tree snapshot.Tree) error {
	if err := os.MkdirAll(h.Root, 0o755); err != nil {
		return fmt.Errorf("creating sandbox root: %w", err)
	}
	return tree.Walk(func(path string, data []byte) error {
		return h.WriteFile(path, data)
	})
}

// WriteFile creates or replaces a single file, creating parent directories.
func (h HostFS) WriteFile(path string, content []byte) error {
	full, err := h.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Remove deletes a file and any parent directories it leaves empty.
func (h HostFS) Remove(path string) error {
	full, err := h.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	root := filepath.Clean(h.Root)
	for dir := filepath.Dir(full); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			// Not empty, or already gone.
			if !errors.Is(err, fs.ErrNotExist) {
				break
			}
		}
	}
	return nil
}
