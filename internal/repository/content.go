package repository

import (
	"fmt"
	"slices"
)

// ContentRepository holds the byte payload of regular files.
type ContentRepository interface {
	Get(ino uint64) ([]byte, error)
	GetRange(ino uint64, offset int64, length int64) ([]byte, error)
	Set(ino uint64, data []byte)
	Delete(ino uint64)
	Snapshot() map[uint64][]byte
}

type contentRepository struct {
	data map[uint64][]byte
}

func NewContentRepository(data map[uint64][]byte) ContentRepository {
	r := &contentRepository{data: make(map[uint64][]byte, len(data))}
	for ino, payload := range data {
		r.data[ino] = slices.Clone(payload)
	}
	return r
}

func (r *contentRepository) Get(ino uint64) ([]byte, error) {
	const op = "repository.contentRepository.Get"

	data, ok := r.data[ino]
	if !ok {
		return nil, fmt.Errorf("%s: ino %d: %w", op, ino, ErrNotFound)
	}

	return slices.Clone(data), nil
}

// GetRange returns data[offset:offset+length] clamped to the payload length.
func (r *contentRepository) GetRange(ino uint64, offset int64, length int64) ([]byte, error) {
	data, err := r.Get(ino)
	if err != nil {
		return nil, err
	}

	dataLen := int64(len(data))
	if offset < 0 || offset >= dataLen || length <= 0 {
		return []byte{}, nil
	}

	available := dataLen - offset
	toRead := length
	if toRead > available {
		toRead = available
	}

	return data[offset : offset+toRead], nil
}

func (r *contentRepository) Set(ino uint64, data []byte) {
	if data == nil {
		data = []byte{}
	}
	r.data[ino] = data
}

func (r *contentRepository) Delete(ino uint64) {
	delete(r.data, ino)
}

func (r *contentRepository) Snapshot() map[uint64][]byte {
	out := make(map[uint64][]byte, len(r.data))
	for ino, payload := range r.data {
		out[ino] = slices.Clone(payload)
	}
	return out
}
