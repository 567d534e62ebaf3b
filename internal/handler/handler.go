package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/S1riyS/hfs/internal/middleware"
	"github.com/S1riyS/hfs/internal/models"
	"github.com/S1riyS/hfs/internal/service"
	"github.com/S1riyS/hfs/pkg/logging"
	"github.com/S1riyS/hfs/pkg/logging/slogext"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
)

const blockSize = 4096

// Handler adapts the filesystem service to the kernel callback interface.
// Attributes are returned without an expiration so the kernel asks again
// on every access.
type Handler struct {
	fuseutil.NotImplementedFileSystem

	service service.FileSystemService
	logger  *slog.Logger

	mu syncutil.InvariantMutex

	nextHandleID fuseops.HandleID                // GUARDED_BY(mu)
	dirHandles   map[fuseops.HandleID]*dirHandle // GUARDED_BY(mu)
}

var _ fuseutil.FileSystem = (*Handler)(nil)

func NewHandler(service service.FileSystemService, logger *slog.Logger) *Handler {
	h := &Handler{
		service:      service,
		logger:       logger,
		nextHandleID: 1,
		dirHandles:   make(map[fuseops.HandleID]*dirHandle),
	}
	h.mu = syncutil.NewInvariantMutex(h.checkInvariants)

	return h
}

// LOCKS_REQUIRED(h.mu)
func (h *Handler) checkInvariants() {
	for id := range h.dirHandles {
		if id >= h.nextHandleID {
			panic(fmt.Sprintf("handle %d not below next handle %d", id, h.nextHandleID))
		}
	}
}

func (h *Handler) requestContext(ctx context.Context) context.Context {
	return middleware.RequestContext(ctx, h.logger)
}

func toInodeAttributes(attr *models.Attr) fuseops.InodeAttributes {
	mode := os.FileMode(attr.Perm) & os.ModePerm
	if attr.IsDir() {
		mode |= os.ModeDir
	}

	return fuseops.InodeAttributes{
		Size:  attr.Size,
		Nlink: attr.Nlink,
		Mode:  mode,
		Atime: attr.Atime,
		Mtime: attr.Mtime,
		Ctime: attr.Ctime,
		Uid:   attr.Uid,
		Gid:   attr.Gid,
	}
}

func toDirentType(kind models.FileType) fuseutil.DirentType {
	if kind == models.FileTypeDir {
		return fuseutil.DT_Directory
	}
	return fuseutil.DT_File
}

func (h *Handler) fillEntry(entry *fuseops.ChildInodeEntry, attr *models.Attr) {
	entry.Child = fuseops.InodeID(attr.Ino)
	entry.Attributes = toInodeAttributes(attr)
}

func (h *Handler) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	st := h.service.Statfs(ctx)

	used := (st.Bytes + blockSize - 1) / blockSize
	op.BlockSize = blockSize
	op.Blocks = used + 1<<20
	op.BlocksFree = op.Blocks - used
	op.BlocksAvailable = op.BlocksFree
	op.IoSize = 1 << 20

	op.Inodes = st.Inodes + 1<<20
	op.InodesFree = op.Inodes - st.Inodes

	return nil
}

func (h *Handler) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	ctx = h.requestContext(ctx)

	attr, err := h.service.Lookup(ctx, uint64(op.Parent), op.Name)
	if err != nil {
		return mapErrorToCode(err)
	}

	h.fillEntry(&op.Entry, attr)
	return nil
}

func (h *Handler) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	ctx = h.requestContext(ctx)

	attr, err := h.service.GetAttr(ctx, uint64(op.Inode))
	if err != nil {
		return mapErrorToCode(err)
	}

	op.Attributes = toInodeAttributes(attr)
	return nil
}

func (h *Handler) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	ctx = h.requestContext(ctx)

	req := models.SetAttrRequest{
		Size:  op.Size,
		Atime: op.Atime,
		Mtime: op.Mtime,
	}
	if op.Mode != nil {
		perm := uint32(op.Mode.Perm())
		req.Mode = &perm
	}

	attr, err := h.service.SetAttr(ctx, uint64(op.Inode), req)
	if err != nil {
		return mapErrorToCode(err)
	}

	op.Attributes = toInodeAttributes(attr)
	return nil
}

func (h *Handler) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	ctx = h.requestContext(ctx)

	return mapErrorToCode(h.service.Forget(ctx, uint64(op.Inode), op.N))
}

func (h *Handler) BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) error {
	ctx = h.requestContext(ctx)

	var firstErr error
	for _, entry := range op.Entries {
		if err := h.service.Forget(ctx, uint64(entry.Inode), entry.N); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return mapErrorToCode(firstErr)
}

func (h *Handler) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	ctx = h.requestContext(ctx)

	attr, err := h.service.Mkdir(ctx, uint64(op.Parent), op.Name, uint32(op.Mode.Perm()))
	if err != nil {
		return mapErrorToCode(err)
	}

	h.fillEntry(&op.Entry, attr)
	return nil
}

// CreateFile answers with the new file's own attributes. The service reports
// the parent, so the child is looked up afterwards; that lookup is the
// reference the kernel takes for the returned entry.
func (h *Handler) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	const method = "handler.Handler.CreateFile"
	ctx = h.requestContext(ctx)

	if _, err := h.service.Create(ctx, uint64(op.Parent), op.Name, uint32(op.Mode.Perm()), 0); err != nil {
		return mapErrorToCode(err)
	}

	attr, err := h.service.Lookup(ctx, uint64(op.Parent), op.Name)
	if err != nil {
		logging.GetLoggerFromContextWithOp(ctx, method).Error("Created file vanished",
			slog.String("name", op.Name),
			slogext.Err(err),
		)
		return mapErrorToCode(err)
	}

	h.fillEntry(&op.Entry, attr)
	return nil
}

func (h *Handler) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	ctx = h.requestContext(ctx)

	return mapErrorToCode(h.service.Rmdir(ctx, uint64(op.Parent), op.Name))
}

func (h *Handler) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	ctx = h.requestContext(ctx)

	return mapErrorToCode(h.service.Unlink(ctx, uint64(op.Parent), op.Name))
}

func (h *Handler) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	ctx = h.requestContext(ctx)

	err := h.service.Rename(ctx,
		uint64(op.OldParent), op.OldName,
		uint64(op.NewParent), op.NewName,
	)
	return mapErrorToCode(err)
}

func (h *Handler) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	ctx = h.requestContext(ctx)

	attr, err := h.service.GetAttr(ctx, uint64(op.Inode))
	if err != nil {
		return mapErrorToCode(err)
	}
	if !attr.IsDir() {
		return fuse.ENOTDIR
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	op.Handle = h.nextHandleID
	h.nextHandleID++
	h.dirHandles[op.Handle] = &dirHandle{ino: attr.Ino}

	return nil
}

// LOCKS_EXCLUDED(h.mu)
func (h *Handler) dirHandle(id fuseops.HandleID) (*dirHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dh, ok := h.dirHandles[id]
	if !ok {
		return nil, syscall.EBADF
	}
	return dh, nil
}

func (h *Handler) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	ctx = h.requestContext(ctx)

	dh, err := h.dirHandle(op.Handle)
	if err != nil {
		return err
	}

	return mapErrorToCode(dh.ReadDir(ctx, h.service, op))
}

func (h *Handler) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.dirHandles, op.Handle)
	return nil
}

func (h *Handler) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	ctx = h.requestContext(ctx)

	attr, err := h.service.GetAttr(ctx, uint64(op.Inode))
	if err != nil {
		return mapErrorToCode(err)
	}
	if attr.IsDir() {
		return syscall.EISDIR
	}

	return nil
}

func (h *Handler) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	ctx = h.requestContext(ctx)

	data, err := h.service.Read(ctx, uint64(op.Inode), op.Offset, int64(len(op.Dst)))
	if err != nil {
		return mapErrorToCode(err)
	}

	op.BytesRead = copy(op.Dst, data)
	return nil
}

func (h *Handler) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	ctx = h.requestContext(ctx)

	_, err := h.service.Write(ctx, uint64(op.Inode), op.Offset, op.Data)
	return mapErrorToCode(err)
}

func (h *Handler) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (h *Handler) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return nil
}

func (h *Handler) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

// mapErrorToCode converts a service error into the errno the kernel expects.
// Anything that is not a service error becomes EIO.
func mapErrorToCode(err error) error {
	if err == nil {
		return nil
	}

	var serviceErr *service.ServiceError
	if errors.As(err, &serviceErr) {
		return syscall.Errno(serviceErr.GetCode())
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return fuse.EIO
}
