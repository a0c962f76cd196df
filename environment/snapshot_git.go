package environment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const snapshotRefPrefix = "refs/steer/"

// GitSnapshotter records the working tree as commits in a private git
// directory, so it works whether or not the tree is itself a repository.
type GitSnapshotter struct {
	root    string
	gitDir  string
	exclude []string
	ready   bool
}

func NewGitSnapshotter(root, store string, exclude []string) *GitSnapshotter {
	return &GitSnapshotter{
		root:    absPath(root),
		gitDir:  filepath.Join(absPath(store), "tree.git"),
		exclude: exclude,
	}
}

// Create commits the current tree and points refs/steer/<name> at it.
func (g *GitSnapshotter) Create(ctx context.Context, name string) error {
	if err := g.init(ctx); err != nil {
		return err
	}
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return err
	}
	if _, err := g.run(ctx, "commit", "--allow-empty", "--no-verify", "-q", "-m", name); err != nil {
		return err
	}
	if _, err := g.run(ctx, "update-ref", snapshotRefPrefix+name, "HEAD"); err != nil {
		return err
	}
	return nil
}

// Restore resets the tree to the commit recorded for name. Untracked files
// are removed; excluded paths are left alone.
func (g *GitSnapshotter) Restore(ctx context.Context, name string) error {
	if !g.ready {
		if _, err := os.Stat(g.gitDir); err != nil {
			return fmt.Errorf("snapshot '%s' does not exist: no snapshot repository", name)
		}
		g.ready = true
	}
	ref := snapshotRefPrefix + name
	if _, err := g.run(ctx, "rev-parse", "--verify", "-q", ref); err != nil {
		return fmt.Errorf("snapshot '%s' does not exist: %w", name, err)
	}
	// Stage the current tree first so read-tree knows which files to delete.
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return err
	}
	if _, err := g.run(ctx, "read-tree", "--reset", "-u", ref); err != nil {
		return err
	}
	if _, err := g.run(ctx, "clean", "-fdq"); err != nil {
		return err
	}
	return nil
}

func (g *GitSnapshotter) init(ctx context.Context) error {
	if g.ready {
		return nil
	}
	if _, err := os.Stat(filepath.Join(g.gitDir, "HEAD")); err != nil {
		if err := os.MkdirAll(g.gitDir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot repository: %w", err)
		}
		if _, err := g.run(ctx, "init", "-q"); err != nil {
			return err
		}
		if _, err := g.run(ctx, "config", "core.bare", "false"); err != nil {
			return err
		}
	}
	if err := g.writeExcludes(); err != nil {
		return err
	}
	g.ready = true
	return nil
}

// writeExcludes mirrors the exclude globs into info/exclude. The snapshot
// repository itself is excluded when it lives inside the tree.
func (g *GitSnapshotter) writeExcludes() error {
	lines := append([]string{}, g.exclude...)
	if rel, err := filepath.Rel(g.root, filepath.Dir(g.gitDir)); err == nil && !strings.HasPrefix(rel, "..") {
		lines = append(lines, "/"+filepath.ToSlash(rel)+"/")
	}
	infoDir := filepath.Join(g.gitDir, "info")
	if err := os.MkdirAll(infoDir, 0755); err != nil {
		return fmt.Errorf("failed to write excludes: %w", err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(infoDir, "exclude"), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write excludes: %w", err)
	}
	return nil
}

func (g *GitSnapshotter) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{
		"--git-dir", g.gitDir,
		"--work-tree", g.root,
		"-c", "user.name=steer",
		"-c", "user.email=steer@localhost",
		"-c", "commit.gpgsign=false",
	}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = g.root
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, string(output))
	}
	return strings.TrimSpace(string(output)), nil
}
