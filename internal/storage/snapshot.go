package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/S1riyS/hfs/internal/models"
	"github.com/hashicorp/go-multierror"
)

const RootIno uint64 = 1

// Snapshot is the state of the three tables after replay.
type Snapshot struct {
	NextIno  uint64
	Attrs    map[uint64]models.Attr
	Entries  map[uint64][]uint64
	Contents map[uint64][]byte
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Attrs:    make(map[uint64]models.Attr),
		Entries:  make(map[uint64][]uint64),
		Contents: make(map[uint64][]byte),
	}
}

func (s *Snapshot) ApplyAttr(attr models.Attr) {
	s.Attrs[attr.Ino] = attr
}

func (s *Snapshot) RemoveAttr(ino uint64) {
	delete(s.Attrs, ino)
}

func (s *Snapshot) ApplyEntry(ino uint64, children []uint64) {
	if children == nil {
		children = []uint64{}
	}
	s.Entries[ino] = slices.Clone(children)
}

func (s *Snapshot) ApplyContent(ino uint64, data []byte) {
	if data == nil {
		data = []byte{}
	}
	s.Contents[ino] = data
}

func (s *Snapshot) RemoveContent(ino uint64) {
	delete(s.Contents, ino)
}

// Finish prunes records left behind by reclaimed inodes, drops inodes that
// are no longer reachable from the root, and computes NextIno.
//
// An inode can be unreachable after a crash if it was unlinked while the
// kernel still held references to it: its tombstones were never written.
func (s *Snapshot) Finish() error {
	root, ok := s.Attrs[RootIno]
	if !ok {
		return ErrMissingRoot
	}
	if root.Kind != models.FileTypeDir {
		return fmt.Errorf("%w: root inode is a %s", ErrInit, root.Kind)
	}
	if _, ok := s.Entries[RootIno]; !ok {
		s.Entries[RootIno] = []uint64{}
	}

	var maxIno uint64 = RootIno
	for ino := range s.Attrs {
		maxIno = max(maxIno, ino)
	}
	for ino, children := range s.Entries {
		maxIno = max(maxIno, ino)
		for _, child := range children {
			maxIno = max(maxIno, child)
		}
	}
	for ino := range s.Contents {
		maxIno = max(maxIno, ino)
	}
	s.NextIno = maxIno + 1

	for ino := range s.Entries {
		if attr, ok := s.Attrs[ino]; !ok || attr.Kind != models.FileTypeDir {
			delete(s.Entries, ino)
		}
	}
	for ino, children := range s.Entries {
		s.Entries[ino] = slices.DeleteFunc(children, func(c uint64) bool {
			_, ok := s.Attrs[c]
			return !ok
		})
	}

	reachable := s.reachable()
	for ino := range s.Attrs {
		if !reachable[ino] {
			delete(s.Attrs, ino)
			delete(s.Entries, ino)
		}
	}
	for ino := range s.Contents {
		if attr, ok := s.Attrs[ino]; !ok || attr.Kind != models.FileTypeFile {
			delete(s.Contents, ino)
		}
	}
	// Sizes follow the tables they describe; an interrupted operation may
	// have written one record but not the other.
	for ino, attr := range s.Attrs {
		switch attr.Kind {
		case models.FileTypeFile:
			if _, ok := s.Contents[ino]; !ok {
				s.Contents[ino] = []byte{}
			}
			attr.Size = uint64(len(s.Contents[ino]))
		case models.FileTypeDir:
			if _, ok := s.Entries[ino]; !ok {
				s.Entries[ino] = []uint64{}
			}
			attr.Size = uint64(len(s.Entries[ino]))
		}
		s.Attrs[ino] = attr
	}

	return s.validate()
}

func (s *Snapshot) reachable() map[uint64]bool {
	seen := map[uint64]bool{RootIno: true}
	queue := []uint64{RootIno}
	for len(queue) > 0 {
		ino := queue[0]
		queue = queue[1:]
		for _, child := range s.Entries[ino] {
			if seen[child] {
				continue
			}
			seen[child] = true
			queue = append(queue, child)
		}
	}
	return seen
}

// validate reports every child listed under more than one parent.
func (s *Snapshot) validate() error {
	var result *multierror.Error

	parents := make(map[uint64]uint64)
	for parent, children := range s.Entries {
		for _, child := range children {
			if other, ok := parents[child]; ok && other != parent {
				result = multierror.Append(result,
					fmt.Errorf("inode %d listed under both %d and %d", child, other, parent))
				continue
			}
			parents[child] = parent
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	return nil
}

// NewRootAttr is the attribute record of the root directory of a fresh
// image.
func NewRootAttr(uid, gid uint32, now time.Time) models.Attr {
	return models.Attr{
		Ino:   RootIno,
		Name:  "/",
		Kind:  models.FileTypeDir,
		Perm:  0o755,
		Uid:   uid,
		Gid:   gid,
		Nlink: 2,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
}
