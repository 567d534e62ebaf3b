package service

import (
	"fmt"
)

// checkInvariants panics if the tables disagree with each other. It runs on
// every unlock of s.mu when invariant checking is enabled.
//
// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) checkInvariants() {
	if !s.initialized {
		return
	}

	attrs := s.attrRepo.Snapshot()
	entries := s.dirRepo.Snapshot()
	contents := s.contentRepo.Snapshot()
	next := s.fsRepo.PeekNextIno()

	root, ok := attrs[RootIno]
	if !ok {
		panic("root inode has no attributes")
	}
	if !root.IsDir() {
		panic(fmt.Sprintf("root inode has kind %v", root.Kind))
	}

	parents := make(map[uint64]uint64)
	for dir, children := range entries {
		dirAttr, ok := attrs[dir]
		if !ok {
			panic(fmt.Sprintf("directory entry %d has no attributes", dir))
		}
		if !dirAttr.IsDir() {
			panic(fmt.Sprintf("inode %d has an entry but is a %v", dir, dirAttr.Kind))
		}
		if dirAttr.Size != uint64(len(children)) {
			panic(fmt.Sprintf("directory %d: size %d, children %d", dir, dirAttr.Size, len(children)))
		}

		names := make(map[string]uint64, len(children))
		for _, child := range children {
			childAttr, ok := attrs[child]
			if !ok {
				panic(fmt.Sprintf("child %d of %d has no attributes", child, dir))
			}
			if other, dup := names[childAttr.Name]; dup {
				panic(fmt.Sprintf("directory %d: name %q used by %d and %d", dir, childAttr.Name, other, child))
			}
			names[childAttr.Name] = child

			if other, dup := parents[child]; dup {
				panic(fmt.Sprintf("inode %d listed under %d and %d", child, other, dir))
			}
			parents[child] = dir
		}
	}

	for ino, attr := range attrs {
		if attr.Ino != ino {
			panic(fmt.Sprintf("attr keyed %d carries ino %d", ino, attr.Ino))
		}
		if ino >= next {
			panic(fmt.Sprintf("inode %d not below next inode %d", ino, next))
		}

		if attr.IsDir() {
			if _, ok := entries[ino]; !ok {
				panic(fmt.Sprintf("directory %d has no entry", ino))
			}
			continue
		}

		data, ok := contents[ino]
		if !ok {
			panic(fmt.Sprintf("file %d has no content", ino))
		}
		if attr.Size != uint64(len(data)) {
			panic(fmt.Sprintf("file %d: size %d, content %d bytes", ino, attr.Size, len(data)))
		}
	}

	for ino := range contents {
		if attr, ok := attrs[ino]; !ok || attr.IsDir() {
			panic(fmt.Sprintf("content %d does not belong to a file", ino))
		}
	}

	// Anything outside the tree must be waiting for the kernel to forget it.
	for ino := range attrs {
		if ino == RootIno {
			continue
		}
		if _, ok := parents[ino]; !ok && !s.lookups.PendingDelete(ino) {
			panic(fmt.Sprintf("inode %d is detached but not pending delete", ino))
		}
	}
}
