// Package yamllog keeps the filesystem tables in three append-only YAML
// logs named by a manifest file.
package yamllog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/S1riyS/hfs/internal/models"
	"github.com/S1riyS/hfs/internal/storage"
	"github.com/S1riyS/hfs/pkg/logging"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAttrFile  = "attr.yaml"
	DefaultEntryFile = "entry.yaml"
	DefaultDataFile  = "data.yaml"
)

type Paths struct {
	Attr  string
	Entry string
	Data  string
}

type Log struct {
	mu sync.Mutex

	paths Paths

	attr  *os.File
	entry *os.File
	data  *os.File

	// Sync forces every append to stable storage before returning.
	Sync bool
}

var _ storage.Log = (*Log)(nil)

func New() *Log {
	return &Log{Sync: true}
}

func (l *Log) Paths() Paths {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paths
}

// LoadManifest resolves the log paths named by the manifest at location.
// Relative paths are resolved against the current working directory; absent
// keys default to files next to the manifest.
func LoadManifest(location string) (Paths, error) {
	const op = "yamllog.LoadManifest"

	raw, err := os.ReadFile(location)
	if err != nil {
		return Paths{}, fmt.Errorf("%s: %w", op, err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Paths{}, fmt.Errorf("%s: %s: %w", op, location, err)
	}

	dir := filepath.Dir(location)
	resolve := func(p, def string) (string, error) {
		if p == "" {
			p = filepath.Join(dir, def)
		}
		return filepath.Abs(p)
	}

	var paths Paths
	if paths.Attr, err = resolve(m.Attr, DefaultAttrFile); err != nil {
		return Paths{}, fmt.Errorf("%s: %w", op, err)
	}
	if paths.Entry, err = resolve(m.Entry, DefaultEntryFile); err != nil {
		return Paths{}, fmt.Errorf("%s: %w", op, err)
	}
	if paths.Data, err = resolve(m.Data, DefaultDataFile); err != nil {
		return Paths{}, fmt.Errorf("%s: %w", op, err)
	}

	return paths, nil
}

func (l *Log) Init(ctx context.Context, location string) (*storage.Snapshot, error) {
	const op = "yamllog.Log.Init"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	paths, err := LoadManifest(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInit, err)
	}

	snap := storage.NewSnapshot()

	err = readRecords(paths.Attr, func(rec attrRecord) error {
		if rec.Deleted {
			snap.RemoveAttr(rec.Ino)
			return nil
		}
		attr, err := rec.attr()
		if err != nil {
			return err
		}
		snap.ApplyAttr(attr)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInit, err)
	}

	err = readRecords(paths.Entry, func(rec entryRecord) error {
		snap.ApplyEntry(rec.Ino, rec.Files)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInit, err)
	}

	err = readRecords(paths.Data, func(rec dataRecord) error {
		if rec.Deleted {
			snap.RemoveContent(rec.Ino)
			return nil
		}
		payload, err := rec.payload()
		if err != nil {
			return err
		}
		snap.ApplyContent(rec.Ino, payload)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInit, err)
	}

	if err := snap.Finish(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInit, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.closeLocked(); err != nil {
		return nil, err
	}
	l.paths = paths
	if err := l.openLocked(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInit, err)
	}

	logger.Info("Image loaded",
		"attr", paths.Attr,
		"entry", paths.Entry,
		"data", paths.Data,
		"inodes", len(snap.Attrs),
		"next_ino", snap.NextIno,
	)

	return snap, nil
}

func (l *Log) openLocked() error {
	var err error
	open := func(path string) *os.File {
		if err != nil {
			return nil
		}
		var f *os.File
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		return f
	}

	l.attr = open(l.paths.Attr)
	l.entry = open(l.paths.Entry)
	l.data = open(l.paths.Data)
	if err != nil {
		_ = l.closeLocked()
		return err
	}
	return nil
}

func (l *Log) AppendAttr(ctx context.Context, attr models.Attr) error {
	return l.append("yamllog.Log.AppendAttr", func() *os.File { return l.attr }, newAttrRecord(attr))
}

func (l *Log) AppendContent(ctx context.Context, ino uint64, data []byte) error {
	return l.append("yamllog.Log.AppendContent", func() *os.File { return l.data }, newDataRecord(ino, data))
}

func (l *Log) AppendEntry(ctx context.Context, ino uint64, children []uint64) error {
	if children == nil {
		children = []uint64{}
	}
	return l.append("yamllog.Log.AppendEntry", func() *os.File { return l.entry }, entryRecord{Ino: ino, Files: children})
}

func (l *Log) TombstoneAttr(ctx context.Context, ino uint64) error {
	return l.append("yamllog.Log.TombstoneAttr", func() *os.File { return l.attr }, attrRecord{Ino: ino, Deleted: true})
}

func (l *Log) TombstoneContent(ctx context.Context, ino uint64) error {
	return l.append("yamllog.Log.TombstoneContent", func() *os.File { return l.data }, dataRecord{Ino: ino, Deleted: true})
}

func (l *Log) append(op string, file func() *os.File, record any) error {
	doc, err := encodeDocument(record)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f := file()
	if f == nil {
		return fmt.Errorf("%s: %w", op, storage.ErrClosed)
	}

	if _, err := f.Write(doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if l.Sync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

func encodeDocument(record any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(record); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Log) closeLocked() error {
	var result *multierror.Error
	for _, f := range []*os.File{l.attr, l.entry, l.data} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	l.attr, l.entry, l.data = nil, nil, nil
	return result.ErrorOrNil()
}
