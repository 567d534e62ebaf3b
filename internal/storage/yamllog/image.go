package yamllog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/S1riyS/hfs/internal/models"
	"github.com/S1riyS/hfs/internal/storage"
	"github.com/S1riyS/hfs/pkg/logging"
	"github.com/facebookgo/atomicfile"
	"gopkg.in/yaml.v3"
)

const DefaultManifestFile = "image.yaml"

// CreateImage writes a manifest and three logs holding only the root
// directory into dir, and returns the manifest path. Existing files are
// replaced.
func CreateImage(ctx context.Context, dir string, root models.Attr) (string, error) {
	const op = "yamllog.CreateImage"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	// The manifest names the logs by absolute path so the image can be
	// mounted from any working directory.
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	manifestPath := filepath.Join(dir, DefaultManifestFile)
	paths := Paths{
		Attr:  filepath.Join(dir, DefaultAttrFile),
		Entry: filepath.Join(dir, DefaultEntryFile),
		Data:  filepath.Join(dir, DefaultDataFile),
	}

	snap := storage.NewSnapshot()
	snap.ApplyAttr(root)
	snap.ApplyEntry(root.Ino, nil)

	if err := writeSnapshot(paths, snap); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	err = writeAtomic(manifestPath, func(w io.Writer) error {
		return yaml.NewEncoder(w).Encode(manifest{
			Attr:  paths.Attr,
			Entry: paths.Entry,
			Data:  paths.Data,
		})
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("Image created", "manifest", manifestPath)
	return manifestPath, nil
}

// Compact rewrites every log so that it holds exactly one record per live
// inode, then reopens the logs for appending.
func (l *Log) Compact(ctx context.Context, snap *storage.Snapshot) error {
	const op = "yamllog.Log.Compact"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.attr == nil {
		return fmt.Errorf("%s: %w", op, storage.ErrClosed)
	}

	if err := l.closeLocked(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := writeSnapshot(l.paths, snap); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := l.openLocked(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("Image compacted", "inodes", len(snap.Attrs))
	return nil
}

func writeSnapshot(paths Paths, snap *storage.Snapshot) error {
	err := writeAtomic(paths.Attr, func(w io.Writer) error {
		for _, ino := range sortedKeys(snap.Attrs) {
			if err := writeDocument(w, newAttrRecord(snap.Attrs[ino])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = writeAtomic(paths.Entry, func(w io.Writer) error {
		for _, ino := range sortedKeys(snap.Entries) {
			children := snap.Entries[ino]
			if children == nil {
				children = []uint64{}
			}
			if err := writeDocument(w, entryRecord{Ino: ino, Files: children}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return writeAtomic(paths.Data, func(w io.Writer) error {
		for _, ino := range sortedKeys(snap.Contents) {
			if err := writeDocument(w, newDataRecord(ino, snap.Contents[ino])); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeDocument(w io.Writer, record any) error {
	doc, err := encodeDocument(record)
	if err != nil {
		return err
	}
	_, err = w.Write(doc)
	return err
}

func writeAtomic(path string, fill func(io.Writer) error) error {
	f, err := atomicfile.New(path, 0o644)
	if err != nil {
		return err
	}

	if err := fill(f); err != nil {
		_ = f.Abort()
		return fmt.Errorf("%s: %w", path, err)
	}

	return f.Close()
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
