package repository

const RootIno uint64 = 1

// FilesystemRepository hands out inode numbers. The counter is seeded from
// replay and never reuses a number within a process lifetime.
type FilesystemRepository interface {
	NewIno() uint64
	PeekNextIno() uint64
}

type filesystemRepository struct {
	nextIno uint64
}

func NewFilesystemRepository(nextIno uint64) FilesystemRepository {
	if nextIno <= RootIno {
		nextIno = RootIno + 1
	}
	return &filesystemRepository{nextIno: nextIno}
}

func (r *filesystemRepository) NewIno() uint64 {
	ino := r.nextIno
	r.nextIno++
	return ino
}

func (r *filesystemRepository) PeekNextIno() uint64 {
	return r.nextIno
}
