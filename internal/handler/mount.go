package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/hfs/pkg/logging"
	"github.com/S1riyS/hfs/pkg/logging/slogext"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
)

type MountOptions struct {
	FSName string
	Debug  bool
}

// Mount serves h at dir until the filesystem is unmounted. Kernel errors are
// written to the logger carried by ctx.
func Mount(ctx context.Context, dir string, h *Handler, opts MountOptions) (*fuse.MountedFileSystem, error) {
	const op = "handler.Mount"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	cfg := &fuse.MountConfig{
		FSName:      opts.FSName,
		Subtype:     opts.FSName,
		ErrorLogger: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	if opts.Debug {
		cfg.DebugLogger = slog.NewLogLogger(logger.Handler(), slog.LevelDebug)
	}

	server := fuseutil.NewFileSystemServer(h)
	mfs, err := fuse.Mount(dir, server, cfg)
	if err != nil {
		logger.Error("Failed to mount", slog.String("mountpoint", dir), slogext.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("Mounted", slog.String("mountpoint", dir), slog.String("fs_name", opts.FSName))
	return mfs, nil
}
