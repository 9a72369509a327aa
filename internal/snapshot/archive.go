// Package snapshot keeps a local git archive of the remote database
// document: one commit per successful write, so any past state of the
// catalog can be recovered even after the Redis audit trail is purged.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const snapshotFile = "database.json"

// CommitInfo describes one archived document state.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archive is a single-branch git repository holding document snapshots.
type Archive struct {
	dir string
	mu  sync.Mutex
}

// New opens (or initializes) the archive at dir.
func New(dir string) (*Archive, error) {
	a := &Archive{dir: dir}
	if err := a.ensureRepo(); err != nil {
		return nil, err
	}
	return a, nil
}

// Commit records a new document state. Content is the raw JSON exactly
// as written to the remote store.
func (a *Archive) Commit(content, actor, message string) (CommitInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := git.PlainOpen(a.dir)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open archive: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.dir, snapshotFile), []byte(content+"\n"), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write snapshot file: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return CommitInfo{}, fmt.Errorf("stage snapshot: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(actor),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists archived states, newest first.
func (a *Archive) History(limit int) ([]CommitInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := git.PlainOpen(a.dir)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []CommitInfo{}, nil
		}
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the document JSON archived under the given commit
// hash (full or abbreviated).
func (a *Archive) ContentAt(hash string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := git.PlainOpen(a.dir)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", hash, err)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read snapshot content: %w", err)
	}
	return content, nil
}

func (a *Archive) ensureRepo() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := os.Stat(a.dir); err == nil {
		if _, err := git.PlainOpen(a.dir); err == nil {
			return nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat archive dir: %w", err)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if _, err := git.PlainInit(a.dir, false); err != nil && !errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return fmt.Errorf("init archive: %w", err)
	}
	return nil
}

func signature(actor string) *object.Signature {
	if actor == "" {
		actor = "galley"
	}
	return &object.Signature{
		Name:  actor,
		Email: "sync@galley.local",
		When:  time.Now(),
	}
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}
