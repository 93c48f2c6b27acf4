// Package archive keeps a git history of persisted document snapshots.
// Every persist cycle that succeeds can be mirrored here, giving operators
// a way to inspect or restore earlier document states. The archive is
// strictly best-effort; it sits behind the live persistence path and its
// failures never reach a session.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const stateFile = "state.bin"

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// ArchiveSnapshot commits one document snapshot. The repository is created
// on first use, one per (organization, page).
func (s *Service) ArchiveSnapshot(organizationID, pageID string, state []byte, actorID string) error {
	lock := s.documentLock(organizationID, pageID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(organizationID, pageID)
	repo, err := s.ensureRepo(path)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	if err := os.WriteFile(filepath.Join(path, stateFile), state, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(stateFile); err != nil {
		return fmt.Errorf("git add snapshot: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	author := actorID
	if author == "" {
		author = "inkwell"
	}
	if _, err := worktree.Commit("Snapshot", &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@archive.inkwell.dev", author),
			When:  time.Now(),
		},
	}); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// History returns the snapshot commit hashes for a document, newest first.
func (s *Service) History(organizationID, pageID string, limit int) ([]string, error) {
	lock := s.documentLock(organizationID, pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(organizationID, pageID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil
		}
		return nil, fmt.Errorf("open archive repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var hashes []string
	for {
		commit, err := iter.Next()
		if err != nil {
			break
		}
		hashes = append(hashes, commit.Hash.String())
		if limit > 0 && len(hashes) >= limit {
			break
		}
	}
	return hashes, nil
}

// Snapshot returns the archived state at a given commit.
func (s *Service) Snapshot(organizationID, pageID, hash string) ([]byte, error) {
	lock := s.documentLock(organizationID, pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(organizationID, pageID))
	if err != nil {
		return nil, fmt.Errorf("open archive repo: %w", err)
	}
	commit, err := repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("resolve commit: %w", err)
	}
	file, err := commit.File(stateFile)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot file: %w", err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return []byte(contents), nil
}

func (s *Service) ensureRepo(path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open archive repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init archive repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(organizationID, pageID string) string {
	return filepath.Join(s.baseDir, organizationID, pageID)
}

func (s *Service) documentLock(organizationID, pageID string) *sync.Mutex {
	key := organizationID + "/" + pageID
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
