package generator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"

	"github.com/protogen-build/protogen/internal/msg"
)

var remoteShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

const gitPrefix = "git:"

var errIllegalRemote = errors.New("empty or illegal remote source string")

// fetchRemote materializes a remote schema source into dir. Sources are
// `git:<url>`, a shortcut like `gh:googleapis/googleapis` (optionally with
// `@branch` and `#commit-or-tag` suffixes), or the path of a local directory
// to copy.
func fetchRemote(source, dir string) error {
	if source == "" {
		return errIllegalRemote
	}

	if strings.HasPrefix(source, gitPrefix) {
		return cloneSchemaRepo(source[len(gitPrefix):], dir)
	}

	for shortcut, url := range remoteShortcuts {
		if strings.HasPrefix(source, shortcut) {
			return cloneSchemaRepo(url+source[len(shortcut):], dir)
		}
	}

	// otherwise it may be a local schema directory to vendor in
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return os.CopyFS(dir, os.DirFS(source))
	}

	return fmt.Errorf("%w: %q", errIllegalRemote, source)
}

type remoteURL struct {
	cleanURL    string
	branch      string
	commitOrTag string
}

// someone/something@master#0.1.0
// someone/something@feature-branch#12345abc
// someone/something#12345abc
func parseRemoteURL(rawURL string) (res remoteURL) {
	parts := strings.SplitN(rawURL, "#", 2)
	baseURL := parts[0]
	if len(parts) == 2 {
		res.commitOrTag = parts[1]
	}

	parts = strings.SplitN(baseURL, "@", 2)
	res.cleanURL = parts[0]
	if len(parts) == 2 {
		res.branch = parts[1]
	}

	if !strings.HasSuffix(res.cleanURL, ".git") {
		res.cleanURL += ".git"
	}

	return
}

// cloneSchemaRepo clones a Git remote into the specified directory
func cloneSchemaRepo(url, dir string) error {
	parsedURL := parseRemoteURL(url)

	cloneOptions := &git.CloneOptions{
		URL:               parsedURL.cleanURL,
		Progress:          &msg.IndentWriter{Indent: "    ", W: os.Stdout},
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}

	if parsedURL.commitOrTag == "" {
		cloneOptions.Depth = 1 // we can do a shallow clone of the latest commit
	}

	if parsedURL.branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(parsedURL.branch)
		cloneOptions.SingleBranch = true
	}

	repo, err := git.PlainClone(dir, cloneOptions)
	if err != nil {
		return err
	}

	if parsedURL.commitOrTag != "" {
		w, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("could not get worktree: %w", err)
		}

		revision := parsedURL.commitOrTag
		hash, err := repo.ResolveRevision(plumbing.Revision(revision))
		if err != nil {
			return fmt.Errorf("could not resolve revision `%s`: %w", revision, err)
		}

		err = w.Checkout(&git.CheckoutOptions{
			Hash:  *hash,
			Force: true,
		})
		if err != nil {
			return fmt.Errorf("failed to checkout `%s`: %w", revision, err)
		}
	}

	return nil
}
