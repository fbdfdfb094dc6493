package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	xssh "golang.org/x/crypto/ssh"
)

// GitSource keeps a local checkout of an inventory repository.
type GitSource struct {
	repo   string
	path   string
	branch string
	auth   transport.AuthMethod
}

func NewGitSource(path, repo string, c *Config) (*GitSource, error) {
	g := &GitSource{
		repo: repo,
		path: path,
	}
	if c == nil {
		return g, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	g.branch = c.Branch
	switch {
	case c.PrivateKey != "":
		if _, err := os.Stat(c.PrivateKey); err != nil {
			return nil, err
		}
		publicKeys, err := ssh.NewPublicKeysFromFile("git", c.PrivateKey, "")
		if err != nil {
			return nil, err
		}
		switch {
		case c.Insecure:
			publicKeys.HostKeyCallback = xssh.InsecureIgnoreHostKey()
		case c.KnownHosts != "":
			callback, err := ssh.NewKnownHostsCallback(c.KnownHosts)
			if err != nil {
				return nil, err
			}
			publicKeys.HostKeyCallback = callback
		default:
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			if _, err := os.Stat(filepath.Join(home, ".ssh", "known_hosts")); err != nil {
				return nil, fmt.Errorf("no known_hosts for git ssh auth: %w", err)
			}
		}
		g.auth = publicKeys
	case c.Username != "":
		g.auth = &http.BasicAuth{
			Username: c.Username,
			Password: c.Password,
		}
	}
	return g, nil
}

// Sync clones the repository on first use and pulls afterwards.
func (g *GitSource) Sync(ctx context.Context) error {
	options := git.CloneOptions{
		URL:      g.repo,
		Auth:     g.auth,
		Progress: os.Stderr,
	}
	pullOptions := git.PullOptions{
		Auth: g.auth,
	}
	if g.branch != "" {
		options.ReferenceName = plumbing.NewBranchReferenceName(g.branch)
		options.SingleBranch = true
		pullOptions.ReferenceName = options.ReferenceName
	}
	_, err := git.PlainCloneContext(ctx, g.path, false, &options)
	if err == nil {
		log.Debug("cloned inventory source", "url", g.repo, "path", g.path)
		return nil
	}
	if !errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return err
	}
	r, err := git.PlainOpen(g.path)
	if err != nil {
		return err
	}
	w, err := r.Worktree()
	if err != nil {
		return err
	}
	err = w.PullContext(ctx, &pullOptions)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	log.Debug("pulled inventory source", "url", g.repo, "path", g.path)
	return nil
}

func (g *GitSource) Clean() error {
	return os.RemoveAll(g.path)
}
