// Package identity derives a stable identity for the development environment
// a command runs from. Git-based identities (remote + branch) survive moving
// the working copy; path-based identities do not.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const gitTimeout = 5 * time.Second

// Context identifies a logical development environment
type Context struct {
	Hash   string // 12 hex chars, stable identifier
	Path   string // absolute path at identification time
	Label  string // human-readable, e.g. "repo/branch"
	Remote string // git remote URL, empty when not under version control
	Branch string // branch or worktree name, empty when unknown
}

// Identify derives the context for a directory. With an empty path the
// current working directory is used. Git lookups are bounded and never fail
// the call; without git identity falls back to the absolute path.
func Identify(path string) (Context, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Context{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = cwd
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Context{}, fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	remote := gitRemote(abs)
	branch := gitBranch(abs)

	var material, label string
	if remote != "" && branch != "" {
		// Git identity is stable even if the checkout moves
		material = remote + ":" + branch
		label = repoName(remote) + "/" + branch
	} else {
		material = abs
		label = filepath.Base(abs)
	}

	sum := sha256.Sum256([]byte(material))

	return Context{
		Hash:   hex.EncodeToString(sum[:])[:12],
		Path:   abs,
		Label:  label,
		Remote: remote,
		Branch: branch,
	}, nil
}

// git runs a git command in dir with a bounded timeout and returns its
// trimmed stdout, or "" on any failure
func git(dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// gitRemote returns the URL of the origin remote, or ""
func gitRemote(dir string) string {
	return git(dir, "remote", "get-url", "origin")
}

// gitBranch returns the current branch name. In detached-head states it falls
// back to the repository's top-level directory name, which covers worktree
// checkouts without a named branch.
func gitBranch(dir string) string {
	if branch := git(dir, "branch", "--show-current"); branch != "" {
		return branch
	}
	if toplevel := git(dir, "rev-parse", "--show-toplevel"); toplevel != "" {
		return filepath.Base(toplevel)
	}
	return ""
}

// repoName extracts the repository name from a remote URL:
// git@github.com:user/repo.git -> repo
func repoName(remoteURL string) string {
	name := strings.TrimRight(remoteURL, "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, ".git")
}
