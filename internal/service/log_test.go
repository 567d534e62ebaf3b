package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/S1riyS/hfs/internal/models"
	"github.com/S1riyS/hfs/internal/storage"
)

var errDiskFull = errors.New("disk full")

type record struct {
	table     string // attr, entry or content
	ino       uint64
	tombstone bool
	attr      models.Attr
	children  []uint64
	data      []byte
}

func (r record) String() string {
	prefix := ""
	if r.tombstone {
		prefix = "-"
	}
	return fmt.Sprintf("%s%s:%d", prefix, r.table, r.ino)
}

// memLog records every append and replays them on Init.
type memLog struct {
	records []record
	// fail makes every append from now on return errDiskFull.
	fail bool
}

func newMemLog(now time.Time) *memLog {
	root := storage.NewRootAttr(DefaultUid, DefaultGid, now)
	return &memLog{records: []record{
		{table: "attr", ino: root.Ino, attr: root},
		{table: "entry", ino: root.Ino, children: []uint64{}},
	}}
}

func (l *memLog) Init(ctx context.Context, location string) (*storage.Snapshot, error) {
	snap := storage.NewSnapshot()
	for _, r := range l.records {
		switch {
		case r.table == "attr" && r.tombstone:
			snap.RemoveAttr(r.ino)
		case r.table == "attr":
			snap.ApplyAttr(r.attr)
		case r.table == "entry":
			snap.ApplyEntry(r.ino, r.children)
		case r.table == "content" && r.tombstone:
			snap.RemoveContent(r.ino)
		case r.table == "content":
			snap.ApplyContent(r.ino, r.data)
		}
	}
	if err := snap.Finish(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (l *memLog) add(r record) error {
	if l.fail {
		return errDiskFull
	}
	l.records = append(l.records, r)
	return nil
}

func (l *memLog) AppendAttr(ctx context.Context, attr models.Attr) error {
	return l.add(record{table: "attr", ino: attr.Ino, attr: attr})
}

func (l *memLog) AppendContent(ctx context.Context, ino uint64, data []byte) error {
	return l.add(record{table: "content", ino: ino, data: slices.Clone(data)})
}

func (l *memLog) AppendEntry(ctx context.Context, ino uint64, children []uint64) error {
	return l.add(record{table: "entry", ino: ino, children: slices.Clone(children)})
}

func (l *memLog) TombstoneAttr(ctx context.Context, ino uint64) error {
	return l.add(record{table: "attr", ino: ino, tombstone: true})
}

func (l *memLog) TombstoneContent(ctx context.Context, ino uint64) error {
	return l.add(record{table: "content", ino: ino, tombstone: true})
}

func (l *memLog) Close() error {
	return nil
}

// since returns the records appended after the first n, in String form.
func (l *memLog) since(n int) []string {
	var out []string
	for _, r := range l.records[n:] {
		out = append(out, r.String())
	}
	return out
}
