// Package repo acquires disposable local copies of remote git repositories.
package repo

import (
	"context"
	"fmt"
	"os"

	gogit "github.com/go-git/go-git/v5"
)

const (
	// temporaryDirectoryPattern names the temp directories holding clones.
	temporaryDirectoryPattern = "repolens-*"

	// errorTempDirFormat reports failure to create the clone directory.
	errorTempDirFormat = "creating temporary directory: %w"
	// errorCloneFormat reports a failed clone of a remote repository.
	errorCloneFormat = "cloning %s: %w"
)

// Checkout is a disposable local copy of a remote repository. Close removes
// the backing directory; callers must defer it on every path once Clone
// succeeds.
type Checkout struct {
	URL string
	Dir string
}

// Clone fetches remoteURL into a fresh temporary directory with history
// depth one. On any failure the directory is removed before returning, so a
// non-nil error never leaks disk state. The clone honors cancellation and
// deadlines on ctx.
func Clone(ctx context.Context, remoteURL string) (*Checkout, error) {
	temporaryDirectory, tempDirError := os.MkdirTemp("", temporaryDirectoryPattern)
	if tempDirError != nil {
		return nil, fmt.Errorf(errorTempDirFormat, tempDirError)
	}

	_, cloneError := gogit.PlainCloneContext(ctx, temporaryDirectory, false, &gogit.CloneOptions{
		URL:   remoteURL,
		Depth: 1,
	})
	if cloneError != nil {
		_ = os.RemoveAll(temporaryDirectory)
		return nil, fmt.Errorf(errorCloneFormat, remoteURL, cloneError)
	}

	return &Checkout{URL: remoteURL, Dir: temporaryDirectory}, nil
}

// Close removes the checkout directory. It is safe to call on a zero-value
// or already-closed checkout.
func (checkout *Checkout) Close() error {
	if checkout.Dir == "" {
		return nil
	}
	removeError := os.RemoveAll(checkout.Dir)
	checkout.Dir = ""
	return removeError
}
