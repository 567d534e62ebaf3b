// Package storage defines the durable log behind the filesystem tables.
//
// A log is an append-only sequence of records per table. Each record either
// upserts the full state of one inode or marks it deleted. Replay applies
// records in order, the last writer wins, and a tombstone removes any earlier
// upsert of the same inode.
package storage

import (
	"context"
	"errors"

	"github.com/S1riyS/hfs/internal/models"
)

var (
	ErrInit        = errors.New("cannot initialize image")
	ErrMissingRoot = errors.New("image has no root directory")
	ErrClosed      = errors.New("log is closed")
)

type Log interface {
	// Init replays the log found at location and returns the rebuilt tables.
	Init(ctx context.Context, location string) (*Snapshot, error)

	AppendAttr(ctx context.Context, attr models.Attr) error
	AppendContent(ctx context.Context, ino uint64, data []byte) error
	AppendEntry(ctx context.Context, ino uint64, children []uint64) error
	TombstoneAttr(ctx context.Context, ino uint64) error
	TombstoneContent(ctx context.Context, ino uint64) error

	Close() error
}
