package handler

import (
	"context"
	"sync"

	"github.com/S1riyS/hfs/internal/service"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// dirHandle buffers one listing of a directory for the lifetime of an open
// handle.
type dirHandle struct {
	ino uint64

	mu      sync.Mutex
	entries []fuseutil.Dirent // GUARDED_BY(mu)
}

// ReadDir serves one batch of entries starting at op.Offset.
//
// A zero offset means either the first call or a rewinddir, so the listing is
// fetched again.
func (dh *dirHandle) ReadDir(ctx context.Context, svc service.FileSystemService, op *fuseops.ReadDirOp) error {
	dh.mu.Lock()
	defer dh.mu.Unlock()

	if op.Offset == 0 || dh.entries == nil {
		dirents, err := svc.ReadDir(ctx, dh.ino)
		if err != nil {
			return err
		}

		dh.entries = make([]fuseutil.Dirent, 0, len(dirents))
		for i, d := range dirents {
			dh.entries = append(dh.entries, fuseutil.Dirent{
				Offset: fuseops.DirOffset(i + 1),
				Inode:  fuseops.InodeID(d.Ino),
				Name:   d.Name,
				Type:   toDirentType(d.Type),
			})
		}
	}

	index := int(op.Offset)
	if index > len(dh.entries) {
		return fuse.EINVAL
	}

	for i := index; i < len(dh.entries); i++ {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dh.entries[i])
		if n == 0 {
			break
		}
		op.BytesRead += n
	}

	return nil
}
