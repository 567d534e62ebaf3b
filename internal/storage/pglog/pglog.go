// Package pglog keeps the filesystem tables as append-only rows in
// PostgreSQL. Several filesystems can share one database; rows are scoped by
// filesystem name.
package pglog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/S1riyS/hfs/internal/models"
	"github.com/S1riyS/hfs/internal/storage"
	"github.com/S1riyS/hfs/pkg/database/postgresql"
	"github.com/S1riyS/hfs/pkg/logging"
)

type Log struct {
	db postgresql.Client

	mu     sync.Mutex
	fsName string

	// root is written when the filesystem has no records yet.
	root models.Attr
}

var _ storage.Log = (*Log)(nil)

func New(db postgresql.Client, root models.Attr) *Log {
	return &Log{db: db, root: root}
}

func (l *Log) Init(ctx context.Context, location string) (*storage.Snapshot, error) {
	const op = "pglog.Log.Init"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if location == "" {
		return nil, fmt.Errorf("%w: %s: empty filesystem name", storage.ErrInit, op)
	}

	if _, err := l.db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrInit, op, err)
	}

	err := postgresql.WithTransaction(ctx, l.db, func(ctx context.Context) error {
		return l.ensureRoot(ctx, location)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrInit, op, err)
	}

	snap := storage.NewSnapshot()
	if err := l.replayAttrs(ctx, location, snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrInit, op, err)
	}
	if err := l.replayEntries(ctx, location, snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrInit, op, err)
	}
	if err := l.replayContents(ctx, location, snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrInit, op, err)
	}

	if err := snap.Finish(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrInit, op, err)
	}

	l.mu.Lock()
	l.fsName = location
	l.mu.Unlock()

	logger.Info("Image loaded",
		"fs_name", location,
		"inodes", len(snap.Attrs),
		"next_ino", snap.NextIno,
	)

	return snap, nil
}

func (l *Log) ensureRoot(ctx context.Context, fsName string) error {
	db := postgresql.GetDBClient(ctx, l.db)

	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM attr_log WHERE fs_name = $1)`,
		fsName,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := insertAttr(ctx, db, fsName, l.root); err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`INSERT INTO entry_log (fs_name, ino, children) VALUES ($1, $2, $3)`,
		fsName, int64(l.root.Ino), []int64{},
	)
	return err
}

func (l *Log) replayAttrs(ctx context.Context, fsName string, snap *storage.Snapshot) error {
	rows, err := l.db.Query(ctx, `
		SELECT ino, deleted, name, file_type, size, perm, uid, gid, nlink, atime, mtime, ctime
		FROM attr_log
		WHERE fs_name = $1
		ORDER BY seq
	`, fsName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ino, size, uid, gid, nlink int64
			perm                       int32
			fileType                   int16
			deleted                    bool
			name                       string
			atime, mtime, ctime        *time.Time
		)
		err := rows.Scan(&ino, &deleted, &name, &fileType, &size, &perm, &uid, &gid, &nlink, &atime, &mtime, &ctime)
		if err != nil {
			return err
		}

		if deleted {
			snap.RemoveAttr(uint64(ino))
			continue
		}

		kind := models.FileType(fileType)
		if !kind.Valid() {
			return fmt.Errorf("ino %d: unknown file_type %d", ino, fileType)
		}

		snap.ApplyAttr(models.Attr{
			Ino:   uint64(ino),
			Size:  uint64(size),
			Name:  name,
			Kind:  kind,
			Perm:  uint32(perm),
			Uid:   uint32(uid),
			Gid:   uint32(gid),
			Nlink: uint32(nlink),
			Atime: derefTime(atime),
			Mtime: derefTime(mtime),
			Ctime: derefTime(ctime),
		})
	}

	return rows.Err()
}

func (l *Log) replayEntries(ctx context.Context, fsName string, snap *storage.Snapshot) error {
	rows, err := l.db.Query(ctx, `
		SELECT ino, children
		FROM entry_log
		WHERE fs_name = $1
		ORDER BY seq
	`, fsName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ino      int64
			children []int64
		)
		if err := rows.Scan(&ino, &children); err != nil {
			return err
		}

		inos := make([]uint64, len(children))
		for i, c := range children {
			inos[i] = uint64(c)
		}
		snap.ApplyEntry(uint64(ino), inos)
	}

	return rows.Err()
}

func (l *Log) replayContents(ctx context.Context, fsName string, snap *storage.Snapshot) error {
	rows, err := l.db.Query(ctx, `
		SELECT ino, deleted, data
		FROM content_log
		WHERE fs_name = $1
		ORDER BY seq
	`, fsName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ino     int64
			deleted bool
			data    []byte
		)
		if err := rows.Scan(&ino, &deleted, &data); err != nil {
			return err
		}

		if deleted {
			snap.RemoveContent(uint64(ino))
			continue
		}
		snap.ApplyContent(uint64(ino), data)
	}

	return rows.Err()
}

func (l *Log) name(op string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsName == "" {
		return "", fmt.Errorf("%s: %w", op, storage.ErrClosed)
	}
	return l.fsName, nil
}

func (l *Log) AppendAttr(ctx context.Context, attr models.Attr) error {
	const op = "pglog.Log.AppendAttr"

	fsName, err := l.name(op)
	if err != nil {
		return err
	}

	if err := insertAttr(ctx, postgresql.GetDBClient(ctx, l.db), fsName, attr); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Log) AppendContent(ctx context.Context, ino uint64, data []byte) error {
	const op = "pglog.Log.AppendContent"

	fsName, err := l.name(op)
	if err != nil {
		return err
	}

	if data == nil {
		data = []byte{}
	}

	db := postgresql.GetDBClient(ctx, l.db)
	_, err = db.Exec(ctx,
		`INSERT INTO content_log (fs_name, ino, data) VALUES ($1, $2, $3)`,
		fsName, int64(ino), data,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Log) AppendEntry(ctx context.Context, ino uint64, children []uint64) error {
	const op = "pglog.Log.AppendEntry"

	fsName, err := l.name(op)
	if err != nil {
		return err
	}

	ids := make([]int64, len(children))
	for i, c := range children {
		ids[i] = int64(c)
	}

	db := postgresql.GetDBClient(ctx, l.db)
	_, err = db.Exec(ctx,
		`INSERT INTO entry_log (fs_name, ino, children) VALUES ($1, $2, $3)`,
		fsName, int64(ino), ids,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Log) TombstoneAttr(ctx context.Context, ino uint64) error {
	const op = "pglog.Log.TombstoneAttr"

	fsName, err := l.name(op)
	if err != nil {
		return err
	}

	db := postgresql.GetDBClient(ctx, l.db)
	_, err = db.Exec(ctx,
		`INSERT INTO attr_log (fs_name, ino, deleted) VALUES ($1, $2, TRUE)`,
		fsName, int64(ino),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Log) TombstoneContent(ctx context.Context, ino uint64) error {
	const op = "pglog.Log.TombstoneContent"

	fsName, err := l.name(op)
	if err != nil {
		return err
	}

	db := postgresql.GetDBClient(ctx, l.db)
	_, err = db.Exec(ctx,
		`INSERT INTO content_log (fs_name, ino, deleted) VALUES ($1, $2, TRUE)`,
		fsName, int64(ino),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close detaches the log from its filesystem. The pool is owned by the
// caller.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fsName = ""
	return nil
}

func insertAttr(ctx context.Context, db postgresql.Client, fsName string, attr models.Attr) error {
	_, err := db.Exec(ctx, `
		INSERT INTO attr_log (fs_name, ino, name, file_type, size, perm, uid, gid, nlink, atime, mtime, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		fsName,
		int64(attr.Ino),
		attr.Name,
		int16(attr.Kind),
		int64(attr.Size),
		int32(attr.Perm),
		int64(attr.Uid),
		int64(attr.Gid),
		int64(attr.Nlink),
		nullTime(attr.Atime),
		nullTime(attr.Mtime),
		nullTime(attr.Ctime),
	)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
