// Package producer resolves the {repo, git_sha, module} identity embedded
// in every artifact envelope's producer field, grounded on the original
// implementation's _git_sha() helper (run_operator_gate_verdict_v3.py):
// shell out to `git rev-parse HEAD`, fall back to "UNKNOWN" rather than
// fail the whole run when git metadata is unavailable.
package producer

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/constellation2/truthcore/internal/codec"
)

const unknownGitSha = "UNKNOWN"

var hexSha = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Identity is the producer triple carried in every artifact envelope.
type Identity struct {
	Repo   string
	GitSha string
	Module string
}

// Resolve builds an Identity, invoking `git rev-parse HEAD` in repoDir with
// a short timeout. Any failure (not a git repo, git unavailable, detached
// worktree with no commits) degrades to GitSha "UNKNOWN" rather than
// failing closed — producer identity is descriptive, not a gate input.
func Resolve(repoDir, repo, module string) Identity {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sha := unknownGitSha
	if out, err := exec.CommandContext(ctx, "git", "rev-parse", "HEAD").
		Dir(repoDir).Output(); err == nil {
		candidate := strings.TrimSpace(string(out))
		if hexSha.MatchString(candidate) {
			sha = candidate
		}
	}

	return Identity{Repo: repo, GitSha: sha, Module: module}
}

// ToValue renders the identity as the canonical producer object.
func (id Identity) ToValue() codec.Object {
	return codec.NewObject().
		Set("repo", codec.String(id.Repo)).
		Set("git_sha", codec.String(id.GitSha)).
		Set("module", codec.String(id.Module)).
		Build()
}
