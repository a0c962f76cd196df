package environment

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/steer/errors"
)

// CopySnapshotter keeps a full copy of the working tree per snapshot.
// Paths matching an exclude glob are neither copied nor touched on restore.
type CopySnapshotter struct {
	root    string
	store   string
	exclude []string
}

func NewCopySnapshotter(root, store string, exclude []string) *CopySnapshotter {
	return &CopySnapshotter{root: absPath(root), store: absPath(store), exclude: exclude}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func (s *CopySnapshotter) Create(ctx context.Context, name string) error {
	dst := filepath.Join(s.store, name)
	if err := os.RemoveAll(dst); err != nil {
		return errors.Wrapf(err, "failed to clear snapshot '%s'", name)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return errors.Wrapf(err, "failed to create snapshot directory")
	}
	if err := s.copyTree(ctx, s.root, dst); err != nil {
		// A half-written snapshot must never be restorable.
		os.RemoveAll(dst)
		return errors.Wrapf(err, "failed to create snapshot '%s'", name)
	}
	return nil
}

func (s *CopySnapshotter) Restore(ctx context.Context, name string) error {
	src := filepath.Join(s.store, name)
	if fi, err := os.Stat(src); err != nil || !fi.IsDir() {
		return errors.New("snapshot '%s' does not exist", name)
	}
	if err := s.clearTree(ctx, s.root); err != nil {
		return errors.Wrapf(err, "failed to clear working tree")
	}
	if err := s.copyTree(ctx, src, s.root); err != nil {
		return errors.Wrapf(err, "failed to restore snapshot '%s'", name)
	}
	return nil
}

// isExcluded checks if a path relative to the root matches any exclude pattern.
func (s *CopySnapshotter) isExcluded(rel string) (bool, error) {
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.exclude {
		match, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

func (s *CopySnapshotter) copyTree(ctx context.Context, from, to string) error {
	return filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		excluded, err := s.isExcluded(rel)
		if err != nil {
			return err
		}
		if excluded || (from == s.root && s.inStore(path)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(to, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// sockets, devices and pipes are not part of a snapshot
			return nil
		}
	})
}

// clearTree removes everything under dir that is not excluded. Directories
// that still hold excluded entries are kept.
func (s *CopySnapshotter) clearTree(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		excluded, err := s.isExcluded(rel)
		if err != nil {
			return err
		}
		if excluded || s.inStore(path) {
			continue
		}
		if e.IsDir() {
			if err := s.clearTree(ctx, path); err != nil {
				return err
			}
			left, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			if len(left) == 0 {
				if err := os.Remove(path); err != nil {
					return err
				}
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// inStore guards against a snapshot store that lives inside the working tree.
func (s *CopySnapshotter) inStore(path string) bool {
	rel, err := filepath.Rel(s.store, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
