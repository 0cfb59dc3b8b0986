package lms

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

const (
	// cloneRetries bounds the retry-with-delay loop for transient clone
	// failures before the error escalates to the participant.
	cloneRetries    = 4
	cloneRetryDelay = 5 * time.Second
)

// GitTransport performs the version-control side of a programming exercise
// participation. Clone and push report their timing as samples under the
// category matching the participant's auth mechanism.
type GitTransport interface {
	// Clone checks the repository out into a fresh working directory and
	// returns its path. Transient failures are retried a small fixed
	// number of times with a fixed delay.
	Clone(ctx context.Context, repositoryURI string, category RequestCategory) (RequestSample, string, error)
	// CommitChange writes a change into the working copy and commits it.
	// An invalid change produces a commit that will fail the CI build,
	// which is deliberate noise for the build queue.
	CommitChange(ctx context.Context, workdir string, invalid bool) error
	// Push pushes the committed changes upstream.
	Push(ctx context.Context, workdir string, category RequestCategory) (RequestSample, error)
}

// CommandRunner defines the interface for executing shell commands. It
// enables testing the git transport with mock implementations.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (er ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		fullCmd := strings.Join(append([]string{name}, args...), " ")
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return "", fmt.Errorf("command %s failed: %w: %s", fullCmd, err, errMsg)
		}
		return "", fmt.Errorf("command %s failed: %w", fullCmd, err)
	}
	return stdout.String(), nil
}

// ExecGit is the default GitTransport using the git binary through a
// CommandRunner. Each participant gets its own working directory below Root.
type ExecGit struct {
	Runner CommandRunner
	Root   string

	// RetryDelay overrides the clone retry delay in tests.
	RetryDelay time.Duration
}

var _ GitTransport = (*ExecGit)(nil)

func (g *ExecGit) runner() CommandRunner {
	if g.Runner != nil {
		return g.Runner
	}
	return ExecRunner{}
}

func (g *ExecGit) retryDelay() time.Duration {
	if g.RetryDelay > 0 {
		return g.RetryDelay
	}
	return cloneRetryDelay
}

func (g *ExecGit) Clone(ctx context.Context, repositoryURI string, category RequestCategory) (RequestSample, string, error) {
	root := g.Root
	if root == "" {
		root = os.TempDir()
	}
	workdir, err := os.MkdirTemp(root, "examload-repo-")
	if err != nil {
		return RequestSample{}, "", fmt.Errorf("create workdir: %w", err)
	}

	start := time.Now()
	err = retry.Do(
		func() error {
			_, cloneErr := g.runner().Run(ctx, "git", "clone", repositoryURI, workdir)
			return cloneErr
		},
		retry.Context(ctx),
		retry.Attempts(cloneRetries),
		retry.Delay(g.retryDelay()),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	sample := Sample(category, start, time.Since(start))
	if err != nil {
		_ = os.RemoveAll(workdir)
		return sample, "", fmt.Errorf("clone %s: %w", repositoryURI, err)
	}
	return sample, workdir, nil
}

func (g *ExecGit) CommitChange(ctx context.Context, workdir string, invalid bool) error {
	content := "class Change { int answer() { return 42; } }\n"
	if invalid {
		content = "class Change { int answer() { return 42 }\n"
	}
	path := filepath.Join(workdir, "Change.java")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	if _, err := g.runner().Run(ctx, "git", "-C", workdir, "add", "."); err != nil {
		return err
	}
	if _, err := g.runner().Run(ctx, "git", "-C", workdir, "commit", "-m", "benchmark change"); err != nil {
		return err
	}
	return nil
}

func (g *ExecGit) Push(ctx context.Context, workdir string, category RequestCategory) (RequestSample, error) {
	start := time.Now()
	_, err := g.runner().Run(ctx, "git", "-C", workdir, "push")
	sample := Sample(category, start, time.Since(start))
	if err != nil {
		return sample, fmt.Errorf("push: %w", err)
	}
	return sample, nil
}
