package service

import (
	"context"
)

// journal collects the log appends of one operation. Records are read from
// the tables when the journal is flushed, so they carry the final state.
type journal struct {
	s       *fileSystemService
	appends []func(ctx context.Context) error
}

func (s *fileSystemService) newJournal() *journal {
	return &journal{s: s}
}

func (j *journal) attr(ino uint64) *journal {
	j.appends = append(j.appends, func(ctx context.Context) error {
		attr, err := j.s.attrRepo.Get(ino)
		if err != nil {
			return wrapError(KindInternal, err, "attr of %d vanished before persisting", ino)
		}
		return j.s.log.AppendAttr(ctx, *attr)
	})
	return j
}

func (j *journal) entry(ino uint64) *journal {
	j.appends = append(j.appends, func(ctx context.Context) error {
		return j.s.log.AppendEntry(ctx, ino, j.s.dirRepo.GetChildren(ino))
	})
	return j
}

func (j *journal) content(ino uint64) *journal {
	j.appends = append(j.appends, func(ctx context.Context) error {
		data, err := j.s.contentRepo.Get(ino)
		if err != nil {
			return wrapError(KindInternal, err, "content of %d vanished before persisting", ino)
		}
		return j.s.log.AppendContent(ctx, ino, data)
	})
	return j
}

func (j *journal) tombstoneAttr(ino uint64) *journal {
	j.appends = append(j.appends, func(ctx context.Context) error {
		return j.s.log.TombstoneAttr(ctx, ino)
	})
	return j
}

func (j *journal) tombstoneContent(ino uint64) *journal {
	j.appends = append(j.appends, func(ctx context.Context) error {
		return j.s.log.TombstoneContent(ctx, ino)
	})
	return j
}

// flush performs the appends in order and stops at the first failure. The
// tables have already been changed at this point; a failed append leaves
// them ahead of the log until the next successful append of the same inode.
func (j *journal) flush(ctx context.Context) error {
	for i, fn := range j.appends {
		if err := fn(ctx); err != nil {
			if se, ok := err.(*ServiceError); ok {
				return se
			}
			return wrapError(KindPersistence, err, "append %d of %d failed", i+1, len(j.appends))
		}
	}
	return nil
}
