package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/logging"
)

// ErrFetchFailed wraps every clone or pull failure.
var ErrFetchFailed = errors.New("fetch failed")

// Fetcher brings a local checkout up to date with its remote.
type Fetcher interface {
	FetchOrUpdate(ctx context.Context, url, localPath string) error
}

// GitFetcher implements Fetcher with go-git, so no git binary is needed for
// remote (http, ssh) URLs.
type GitFetcher struct {
	logger *logging.Logger
}

// NewGitFetcher creates a fetcher.
func NewGitFetcher(logger *logging.Logger) *GitFetcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GitFetcher{logger: logger}
}

// FetchOrUpdate clones url into localPath when localPath is absent, and pulls
// the checked-out branch otherwise. An up-to-date checkout is success.
func (f *GitFetcher) FetchOrUpdate(ctx context.Context, url, localPath string) error {
	if _, err := os.Stat(localPath); errors.Is(err, os.ErrNotExist) {
		f.logger.Info(ctx, "cloning repository", zap.String("path", localPath))
		if _, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: url}); err != nil {
			// A half-written clone would turn the next run into a failing pull.
			_ = os.RemoveAll(localPath)
			return fmt.Errorf("%w: clone into %s: %v", ErrFetchFailed, localPath, err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrFetchFailed, localPath, err)
	}

	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrFetchFailed, localPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: worktree %s: %v", ErrFetchFailed, localPath, err)
	}

	f.logger.Info(ctx, "pulling repository", zap.String("path", localPath))
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: pull %s: %v", ErrFetchFailed, localPath, err)
	}
	return nil
}
