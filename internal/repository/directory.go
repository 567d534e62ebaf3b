package repository

import (
	"fmt"
	"slices"
)

// DirectoryRepository is the directory tree: an ordered list of child inodes
// per directory inode.
type DirectoryRepository interface {
	GetChildren(ino uint64) []uint64
	Exists(ino uint64) bool
	CreateEntry(ino uint64)
	AppendChild(parent, child uint64)
	RemoveChild(parent, child uint64)
	MoveChild(ino, oldParent, newParent uint64) error
	Delete(ino uint64)
	IsEmpty(ino uint64) bool
	Snapshot() map[uint64][]uint64
}

type directoryRepository struct {
	entries map[uint64][]uint64
}

func NewDirectoryRepository(entries map[uint64][]uint64) DirectoryRepository {
	r := &directoryRepository{entries: make(map[uint64][]uint64, len(entries))}
	for ino, children := range entries {
		r.entries[ino] = slices.Clone(children)
	}
	return r
}

// GetChildren returns a copy of the children of ino, or an empty slice.
func (r *directoryRepository) GetChildren(ino uint64) []uint64 {
	return slices.Clone(r.entries[ino])
}

func (r *directoryRepository) Exists(ino uint64) bool {
	_, ok := r.entries[ino]
	return ok
}

func (r *directoryRepository) CreateEntry(ino uint64) {
	if _, ok := r.entries[ino]; !ok {
		r.entries[ino] = []uint64{}
	}
}

func (r *directoryRepository) AppendChild(parent, child uint64) {
	r.entries[parent] = append(r.entries[parent], child)
}

// RemoveChild is a no-op when child is not listed under parent.
func (r *directoryRepository) RemoveChild(parent, child uint64) {
	children, ok := r.entries[parent]
	if !ok {
		return
	}
	r.entries[parent] = slices.DeleteFunc(children, func(c uint64) bool { return c == child })
}

func (r *directoryRepository) MoveChild(ino, oldParent, newParent uint64) error {
	const op = "repository.directoryRepository.MoveChild"

	if !slices.Contains(r.entries[oldParent], ino) {
		return fmt.Errorf("%s: ino %d under %d: %w", op, ino, oldParent, ErrNotFound)
	}

	r.RemoveChild(oldParent, ino)
	r.AppendChild(newParent, ino)
	return nil
}

func (r *directoryRepository) Delete(ino uint64) {
	delete(r.entries, ino)
}

func (r *directoryRepository) IsEmpty(ino uint64) bool {
	return len(r.entries[ino]) == 0
}

func (r *directoryRepository) Snapshot() map[uint64][]uint64 {
	out := make(map[uint64][]uint64, len(r.entries))
	for ino, children := range r.entries {
		out[ino] = slices.Clone(children)
	}
	return out
}
