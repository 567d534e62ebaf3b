package repository

import (
	"fmt"
	"time"

	"github.com/S1riyS/hfs/internal/models"
)

// AttrRepository is the attribute table. It is not safe for concurrent use;
// the filesystem service serializes access.
type AttrRepository interface {
	Get(ino uint64) (*models.Attr, error)
	Put(attr models.Attr)
	Delete(ino uint64) (*models.Attr, error)
	Exists(ino uint64) bool

	UpdateName(ino uint64, name string) error
	UpdatePerm(ino uint64, perm uint32) error
	UpdateUid(ino uint64, uid uint32) error
	UpdateGid(ino uint64, gid uint32) error
	UpdateSize(ino uint64, size uint64) error
	UpdateNlink(ino uint64, nlink uint32) error
	UpdateAtime(ino uint64, t time.Time) error
	UpdateMtime(ino uint64, t time.Time) error
	UpdateCtime(ino uint64, t time.Time) error

	// IncrementSize and DecrementSize treat the size of a directory as the
	// number of its children.
	IncrementSize(ino uint64) error
	DecrementSize(ino uint64) error

	// CompareSize reports whether size is Smaller than, Equal to, or Larger
	// than the current size of ino.
	CompareSize(ino uint64, size uint64) (models.Compare, error)

	Snapshot() map[uint64]models.Attr
}

type attrRepository struct {
	attrs map[uint64]*models.Attr
}

func NewAttrRepository(attrs map[uint64]models.Attr) AttrRepository {
	r := &attrRepository{attrs: make(map[uint64]*models.Attr, len(attrs))}
	for ino, attr := range attrs {
		a := attr
		a.Ino = ino
		r.attrs[ino] = &a
	}
	return r
}

func (r *attrRepository) Get(ino uint64) (*models.Attr, error) {
	const op = "repository.attrRepository.Get"

	attr, ok := r.attrs[ino]
	if !ok {
		return nil, fmt.Errorf("%s: ino %d: %w", op, ino, ErrNotFound)
	}

	copied := *attr
	return &copied, nil
}

func (r *attrRepository) Put(attr models.Attr) {
	r.attrs[attr.Ino] = &attr
}

func (r *attrRepository) Delete(ino uint64) (*models.Attr, error) {
	const op = "repository.attrRepository.Delete"

	attr, ok := r.attrs[ino]
	if !ok {
		return nil, fmt.Errorf("%s: ino %d: %w", op, ino, ErrNotFound)
	}
	delete(r.attrs, ino)

	return attr, nil
}

func (r *attrRepository) Exists(ino uint64) bool {
	_, ok := r.attrs[ino]
	return ok
}

func (r *attrRepository) update(op string, ino uint64, fn func(*models.Attr)) error {
	attr, ok := r.attrs[ino]
	if !ok {
		return fmt.Errorf("%s: ino %d: %w", op, ino, ErrNotFound)
	}
	fn(attr)
	return nil
}

func (r *attrRepository) UpdateName(ino uint64, name string) error {
	return r.update("repository.attrRepository.UpdateName", ino, func(a *models.Attr) { a.Name = name })
}

func (r *attrRepository) UpdatePerm(ino uint64, perm uint32) error {
	return r.update("repository.attrRepository.UpdatePerm", ino, func(a *models.Attr) { a.Perm = perm })
}

func (r *attrRepository) UpdateUid(ino uint64, uid uint32) error {
	return r.update("repository.attrRepository.UpdateUid", ino, func(a *models.Attr) { a.Uid = uid })
}

func (r *attrRepository) UpdateGid(ino uint64, gid uint32) error {
	return r.update("repository.attrRepository.UpdateGid", ino, func(a *models.Attr) { a.Gid = gid })
}

func (r *attrRepository) UpdateSize(ino uint64, size uint64) error {
	return r.update("repository.attrRepository.UpdateSize", ino, func(a *models.Attr) { a.Size = size })
}

func (r *attrRepository) UpdateNlink(ino uint64, nlink uint32) error {
	return r.update("repository.attrRepository.UpdateNlink", ino, func(a *models.Attr) { a.Nlink = nlink })
}

func (r *attrRepository) UpdateAtime(ino uint64, t time.Time) error {
	return r.update("repository.attrRepository.UpdateAtime", ino, func(a *models.Attr) { a.Atime = t })
}

func (r *attrRepository) UpdateMtime(ino uint64, t time.Time) error {
	return r.update("repository.attrRepository.UpdateMtime", ino, func(a *models.Attr) { a.Mtime = t })
}

func (r *attrRepository) UpdateCtime(ino uint64, t time.Time) error {
	return r.update("repository.attrRepository.UpdateCtime", ino, func(a *models.Attr) { a.Ctime = t })
}

func (r *attrRepository) IncrementSize(ino uint64) error {
	return r.update("repository.attrRepository.IncrementSize", ino, func(a *models.Attr) { a.Size++ })
}

func (r *attrRepository) DecrementSize(ino uint64) error {
	return r.update("repository.attrRepository.DecrementSize", ino, func(a *models.Attr) {
		if a.Size > 0 {
			a.Size--
		}
	})
}

func (r *attrRepository) CompareSize(ino uint64, size uint64) (models.Compare, error) {
	const op = "repository.attrRepository.CompareSize"

	attr, ok := r.attrs[ino]
	if !ok {
		return models.Equal, fmt.Errorf("%s: ino %d: %w", op, ino, ErrNotFound)
	}

	switch {
	case size < attr.Size:
		return models.Smaller, nil
	case size > attr.Size:
		return models.Larger, nil
	default:
		return models.Equal, nil
	}
}

func (r *attrRepository) Snapshot() map[uint64]models.Attr {
	out := make(map[uint64]models.Attr, len(r.attrs))
	for ino, attr := range r.attrs {
		out[ino] = *attr
	}
	return out
}
