package git

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrRevertConflict means the branch has since diverged on a path the
// target commit touched, so the inverse change cannot be applied cleanly.
var ErrRevertConflict = errors.New("revert conflicts with later changes")

var committerIdentity = object.Signature{
	Name:  "buildwarden",
	Email: "buildwarden@localhost",
}

// revertInProcess creates a commit on the branch inverting a
// single-parent target commit. The inverse of each file change in the
// target is applied to the branch head's tree: additions are removed,
// deletions restored, and modifications rolled back to the parent's
// blob. Any touched path that no longer carries the target's version
// fails with ErrRevertConflict rather than guessing at a merge.
func revertInProcess(repo *gogit.Repository, target *object.Commit, branch string) error {
	if target.NumParents() != 1 {
		return fmt.Errorf("in-process revert handles single-parent commits only, got %d parents", target.NumParents())
	}

	parent, err := target.Parent(0)
	if err != nil {
		return fmt.Errorf("resolve parent: %w", err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return fmt.Errorf("parent tree: %w", err)
	}
	targetTree, err := target.Tree()
	if err != nil {
		return fmt.Errorf("target tree: %w", err)
	}

	refName := plumbing.NewBranchReferenceName(branch)
	ref, err := repo.Reference(refName, true)
	if err != nil {
		return fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	head, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return fmt.Errorf("resolve head commit: %w", err)
	}
	headTree, err := head.Tree()
	if err != nil {
		return fmt.Errorf("head tree: %w", err)
	}

	changes, err := object.DiffTree(parentTree, targetTree)
	if err != nil {
		return fmt.Errorf("diff target against parent: %w", err)
	}
	if len(changes) == 0 {
		return fmt.Errorf("commit %s changes nothing", target.Hash)
	}

	entries, err := flattenTree(headTree)
	if err != nil {
		return fmt.Errorf("flatten head tree: %w", err)
	}

	for _, change := range changes {
		if err := applyInverse(entries, change); err != nil {
			return err
		}
	}

	treeHash, err := buildTree(repo, entries)
	if err != nil {
		return fmt.Errorf("write reverted tree: %w", err)
	}

	now := time.Now()
	signature := committerIdentity
	signature.When = now

	summary := strings.SplitN(target.Message, "\n", 2)[0]
	commit := &object.Commit{
		Author:       signature,
		Committer:    signature,
		Message:      fmt.Sprintf("Revert %q\n\nThis reverts commit %s.\n", summary, target.Hash),
		TreeHash:     treeHash,
		ParentHashes: []plumbing.Hash{head.Hash},
	}

	obj := repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return fmt.Errorf("encode revert commit: %w", err)
	}
	commitHash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("store revert commit: %w", err)
	}

	if err := repo.Storer.SetReference(plumbing.NewHashReference(refName, commitHash)); err != nil {
		return fmt.Errorf("advance branch %s: %w", branch, err)
	}
	return nil
}

// applyInverse mutates the path-to-entry map to undo one file change.
func applyInverse(entries map[string]object.TreeEntry, change *object.Change) error {
	fromPath, toPath := change.From.Name, change.To.Name

	switch {
	case fromPath == "":
		// The target added the file; the revert removes it, provided the
		// branch still carries the target's version.
		current, ok := entries[toPath]
		if !ok || current.Hash != change.To.TreeEntry.Hash {
			return fmt.Errorf("%w: %s was changed after the target commit", ErrRevertConflict, toPath)
		}
		delete(entries, toPath)
	case toPath == "":
		// The target deleted the file; the revert restores the parent's
		// version, provided nothing re-created the path since.
		if _, ok := entries[fromPath]; ok {
			return fmt.Errorf("%w: %s was re-created after the target commit", ErrRevertConflict, fromPath)
		}
		entries[fromPath] = change.From.TreeEntry
	default:
		// Modified (possibly renamed): roll the path back to the
		// parent's entry.
		current, ok := entries[toPath]
		if !ok || current.Hash != change.To.TreeEntry.Hash {
			return fmt.Errorf("%w: %s was changed after the target commit", ErrRevertConflict, toPath)
		}
		delete(entries, toPath)
		entries[fromPath] = change.From.TreeEntry
	}
	return nil
}

// flattenTree maps every blob in the tree to its full path. Tree entries
// for directories are rebuilt later from the leaf paths.
func flattenTree(tree *object.Tree) (map[string]object.TreeEntry, error) {
	entries := make(map[string]object.TreeEntry)

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if entry.Mode == filemode.Dir {
			continue
		}
		entries[name] = object.TreeEntry{Name: name, Mode: entry.Mode, Hash: entry.Hash}
	}
	return entries, nil
}

// buildTree writes the nested tree objects for a flat path-to-entry map
// and returns the root tree hash.
func buildTree(repo *gogit.Repository, entries map[string]object.TreeEntry) (plumbing.Hash, error) {
	type node struct {
		files    map[string]object.TreeEntry
		children map[string]*node
	}
	newNode := func() *node {
		return &node{files: make(map[string]object.TreeEntry), children: make(map[string]*node)}
	}

	root := newNode()
	for path, entry := range entries {
		parts := strings.Split(path, "/")
		current := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := current.children[dir]
			if !ok {
				child = newNode()
				current.children[dir] = child
			}
			current = child
		}
		current.files[parts[len(parts)-1]] = entry
	}

	var write func(n *node) (plumbing.Hash, error)
	write = func(n *node) (plumbing.Hash, error) {
		treeEntries := make([]object.TreeEntry, 0, len(n.files)+len(n.children))
		for name, entry := range n.files {
			treeEntries = append(treeEntries, object.TreeEntry{Name: name, Mode: entry.Mode, Hash: entry.Hash})
		}
		for name, child := range n.children {
			hash, err := write(child)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			treeEntries = append(treeEntries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
		}

		// Git orders tree entries by name with directories compared as if
		// suffixed by "/".
		sort.Slice(treeEntries, func(i, j int) bool {
			return sortName(treeEntries[i]) < sortName(treeEntries[j])
		})

		tree := &object.Tree{Entries: treeEntries}
		obj := repo.Storer.NewEncodedObject()
		if err := tree.Encode(obj); err != nil {
			return plumbing.ZeroHash, err
		}
		return repo.Storer.SetEncodedObject(obj)
	}

	return write(root)
}

func sortName(entry object.TreeEntry) string {
	if entry.Mode == filemode.Dir {
		return entry.Name + "/"
	}
	return entry.Name
}
