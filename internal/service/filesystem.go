package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/S1riyS/hfs/internal/models"
	"github.com/S1riyS/hfs/internal/repository"
	"github.com/S1riyS/hfs/internal/storage"
	"github.com/S1riyS/hfs/pkg/logging"
	"github.com/S1riyS/hfs/pkg/logging/slogext"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

const (
	RootIno = repository.RootIno

	DefaultUid uint32 = 1000
	DefaultGid uint32 = 1000

	permMask uint32 = 0o7777
)

type FileSystemService interface {
	Init(ctx context.Context, location string) error
	Root() uint64
	Lookup(ctx context.Context, parent uint64, name string) (*models.Attr, error)
	GetAttr(ctx context.Context, ino uint64) (*models.Attr, error)
	ReadDir(ctx context.Context, ino uint64) ([]models.Dirent, error)
	Read(ctx context.Context, ino uint64, offset int64, size int64) ([]byte, error)
	Write(ctx context.Context, ino uint64, offset int64, data []byte) (uint64, error)
	SetAttr(ctx context.Context, ino uint64, req models.SetAttrRequest) (*models.Attr, error)
	Create(ctx context.Context, parent uint64, name string, mode uint32, flags uint32) (*models.Attr, error)
	Mkdir(ctx context.Context, parent uint64, name string, mode uint32) (*models.Attr, error)
	Unlink(ctx context.Context, parent uint64, name string) error
	Rmdir(ctx context.Context, parent uint64, name string) error
	Forget(ctx context.Context, ino uint64, nlookup uint64) error
	Rename(ctx context.Context, parent uint64, name string, newParent uint64, newName string) error
	NewIno() uint64
	Statfs(ctx context.Context) models.Statfs
	Snapshot() *storage.Snapshot
}

type Options struct {
	DefaultUid uint32
	DefaultGid uint32
	// WholeRead returns the full payload from Read, ignoring offset and size.
	WholeRead bool
}

type fileSystemService struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	log   storage.Log
	clock timeutil.Clock
	opts  Options

	/////////////////////////
	// Mutable state
	/////////////////////////

	// Guards every table below. Each operation holds it for its whole
	// duration, including the log appends, so operations never interleave.
	mu syncutil.InvariantMutex

	initialized bool

	fsRepo      repository.FilesystemRepository // GUARDED_BY(mu)
	attrRepo    repository.AttrRepository       // GUARDED_BY(mu)
	dirRepo     repository.DirectoryRepository  // GUARDED_BY(mu)
	contentRepo repository.ContentRepository    // GUARDED_BY(mu)
	lookups     repository.LookupCounter        // GUARDED_BY(mu)
}

func NewFileSystemService(log storage.Log, clock timeutil.Clock, opts Options) FileSystemService {
	if opts.DefaultUid == 0 && opts.DefaultGid == 0 {
		opts.DefaultUid, opts.DefaultGid = DefaultUid, DefaultGid
	}

	s := &fileSystemService{
		log:         log,
		clock:       clock,
		opts:        opts,
		fsRepo:      repository.NewFilesystemRepository(RootIno + 1),
		attrRepo:    repository.NewAttrRepository(nil),
		dirRepo:     repository.NewDirectoryRepository(nil),
		contentRepo: repository.NewContentRepository(nil),
		lookups:     repository.NewLookupCounter(),
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)

	return s
}

func (s *fileSystemService) Init(ctx context.Context, location string) error {
	const op = "service.fileSystemService.Init"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Init", slog.String("location", location))

	snap, err := s.log.Init(ctx, location)
	if err != nil {
		logger.Error("Failed to load image", slogext.Err(err), slog.String("location", location))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fsRepo = repository.NewFilesystemRepository(snap.NextIno)
	s.attrRepo = repository.NewAttrRepository(snap.Attrs)
	s.dirRepo = repository.NewDirectoryRepository(snap.Entries)
	s.contentRepo = repository.NewContentRepository(snap.Contents)
	s.lookups = repository.NewLookupCounter()
	s.initialized = true

	logger.Debug("Filesystem initialized",
		slog.Int("inodes", len(snap.Attrs)),
		slog.Uint64("next_ino", snap.NextIno),
	)
	return nil
}

func (s *fileSystemService) Root() uint64 {
	return RootIno
}

func (s *fileSystemService) NewIno() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsRepo.NewIno()
}

// findChild resolves name under parent.
//
// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) findChild(parent uint64, name string) (*models.Attr, error) {
	if _, err := s.dirAttr(parent); err != nil {
		return nil, err
	}

	for _, child := range s.dirRepo.GetChildren(parent) {
		attr, err := s.attrRepo.Get(child)
		if err != nil {
			return nil, wrapError(KindInternal, err, "child %d of %d has no attributes", child, parent)
		}
		if attr.Name == name {
			return attr, nil
		}
	}

	return nil, newError(KindNotFound, "%q not found in %d", name, parent)
}

// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) dirAttr(ino uint64) (*models.Attr, error) {
	attr, err := s.attrRepo.Get(ino)
	if err != nil {
		return nil, wrapError(KindNotFound, err, "inode %d not found", ino)
	}
	if !attr.IsDir() {
		return nil, newError(KindNotDirectory, "inode %d is not a directory", ino)
	}
	return attr, nil
}

// liveDirAttr is dirAttr for a directory that is about to gain a child. A
// directory that was removed while the kernel still references it takes no
// new entries.
//
// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) liveDirAttr(ino uint64) (*models.Attr, error) {
	attr, err := s.dirAttr(ino)
	if err != nil {
		return nil, err
	}
	if s.lookups.PendingDelete(ino) {
		return nil, newError(KindNotFound, "directory %d has been removed", ino)
	}
	return attr, nil
}

// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) fileAttr(ino uint64) (*models.Attr, error) {
	attr, err := s.attrRepo.Get(ino)
	if err != nil {
		return nil, wrapError(KindNotFound, err, "inode %d not found", ino)
	}
	if attr.IsDir() {
		return nil, newError(KindIsDirectory, "inode %d is a directory", ino)
	}
	return attr, nil
}

func logResult(logger *slog.Logger, msg string, err error, attrs ...any) {
	var se *ServiceError
	switch {
	case errors.As(err, &se) && se.Kind == KindInternal:
		logger.Error(msg+": invariant violated", append(attrs, slogext.Err(err))...)
	case errors.As(err, &se) && se.Kind == KindPersistence:
		logger.Error(msg+": persisting failed", append(attrs, slogext.Err(err))...)
	default:
		logger.Debug(msg, append(attrs, slogext.Err(err))...)
	}
}

func (s *fileSystemService) Lookup(ctx context.Context, parent uint64, name string) (*models.Attr, error) {
	const op = "service.fileSystemService.Lookup"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Lookup", slog.Uint64("parent_ino", parent), slog.String("name", name))

	s.mu.Lock()
	defer s.mu.Unlock()

	attr, err := s.findChild(parent, name)
	if err != nil {
		logResult(logger, "Lookup failed", err, slog.Uint64("parent_ino", parent), slog.String("name", name))
		return nil, err
	}

	s.lookups.Touch(attr.Ino)

	logger.Debug("Lookup successful",
		slog.Uint64("ino", attr.Ino),
		slog.Uint64("lookup_count", s.lookups.Count(attr.Ino)),
	)
	return attr, nil
}

func (s *fileSystemService) GetAttr(ctx context.Context, ino uint64) (*models.Attr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attr, err := s.attrRepo.Get(ino)
	if err != nil {
		return nil, wrapError(KindNotFound, err, "inode %d not found", ino)
	}
	return attr, nil
}

func (s *fileSystemService) ReadDir(ctx context.Context, ino uint64) ([]models.Dirent, error) {
	const op = "service.fileSystemService.ReadDir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("ReadDir", slog.Uint64("ino", ino))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.dirAttr(ino); err != nil {
		logResult(logger, "ReadDir failed", err, slog.Uint64("ino", ino))
		return nil, err
	}

	if err := s.attrRepo.UpdateAtime(ino, s.clock.Now()); err != nil {
		return nil, wrapError(KindInternal, err, "update atime of %d", ino)
	}
	if err := s.newJournal().attr(ino).flush(ctx); err != nil {
		logResult(logger, "ReadDir failed", err, slog.Uint64("ino", ino))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	children := s.dirRepo.GetChildren(ino)
	dirents := make([]models.Dirent, 0, len(children))
	for _, child := range children {
		attr, err := s.attrRepo.Get(child)
		if err != nil {
			err = wrapError(KindInternal, err, "child %d of %d has no attributes", child, ino)
			logResult(logger, "ReadDir failed", err, slog.Uint64("ino", ino))
			return nil, err
		}
		dirents = append(dirents, models.Dirent{Ino: child, Name: attr.Name, Type: attr.Kind})
	}

	logger.Debug("ReadDir successful", slog.Uint64("ino", ino), slog.Int("entries", len(dirents)))
	return dirents, nil
}

func (s *fileSystemService) Read(ctx context.Context, ino uint64, offset int64, size int64) ([]byte, error) {
	const op = "service.fileSystemService.Read"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Read",
		slog.Uint64("ino", ino),
		slog.Int64("offset", offset),
		slog.Int64("size", size),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fileAttr(ino); err != nil {
		logResult(logger, "Read failed", err, slog.Uint64("ino", ino))
		return nil, err
	}

	if err := s.attrRepo.UpdateAtime(ino, s.clock.Now()); err != nil {
		return nil, wrapError(KindInternal, err, "update atime of %d", ino)
	}
	if err := s.newJournal().attr(ino).flush(ctx); err != nil {
		logResult(logger, "Read failed", err, slog.Uint64("ino", ino))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		data []byte
		err  error
	)
	if s.opts.WholeRead {
		data, err = s.contentRepo.Get(ino)
	} else {
		data, err = s.contentRepo.GetRange(ino, offset, size)
	}
	if err != nil {
		err = wrapError(KindInternal, err, "file %d has no content", ino)
		logResult(logger, "Read failed", err, slog.Uint64("ino", ino))
		return nil, err
	}

	logger.Debug("Read successful", slog.Uint64("ino", ino), slog.Int("bytes_read", len(data)))
	return data, nil
}

func (s *fileSystemService) Write(ctx context.Context, ino uint64, offset int64, data []byte) (uint64, error) {
	const op = "service.fileSystemService.Write"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Write",
		slog.Uint64("ino", ino),
		slog.Int64("offset", offset),
		slog.Int("length", len(data)),
	)

	if offset < 0 {
		return 0, newError(KindInvalid, "negative offset %d", offset)
	}
	if uint64(offset)+uint64(len(data)) > MaxFileSize {
		err := newError(KindFileTooLarge, "write of %d bytes at %d exceeds %d", len(data), offset, MaxFileSize)
		logResult(logger, "Write failed", err, slog.Uint64("ino", ino))
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fileAttr(ino); err != nil {
		logResult(logger, "Write failed", err, slog.Uint64("ino", ino))
		return 0, err
	}

	current, err := s.contentRepo.Get(ino)
	if err != nil {
		err = wrapError(KindInternal, err, "file %d has no content", ino)
		logResult(logger, "Write failed", err, slog.Uint64("ino", ino))
		return 0, err
	}

	merged := mergeAt(current, offset, data)
	newSize := uint64(len(merged))
	s.contentRepo.Set(ino, merged)

	now := s.clock.Now()
	if err := s.attrRepo.UpdateSize(ino, newSize); err != nil {
		return 0, wrapError(KindInternal, err, "update size of %d", ino)
	}
	if err := s.modified(ino, now); err != nil {
		logResult(logger, "Write failed", err, slog.Uint64("ino", ino))
		return 0, err
	}

	if err := s.newJournal().content(ino).attr(ino).flush(ctx); err != nil {
		logResult(logger, "Write failed", err, slog.Uint64("ino", ino))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Write successful",
		slog.Uint64("ino", ino),
		slog.Int("old_size", len(current)),
		slog.Uint64("new_size", newSize),
	)
	return newSize, nil
}

func (s *fileSystemService) SetAttr(ctx context.Context, ino uint64, req models.SetAttrRequest) (*models.Attr, error) {
	const op = "service.fileSystemService.SetAttr"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("SetAttr", slog.Uint64("ino", ino))

	s.mu.Lock()
	defer s.mu.Unlock()

	attr, err := s.attrRepo.Get(ino)
	if err != nil {
		err = wrapError(KindNotFound, err, "inode %d not found", ino)
		logResult(logger, "SetAttr failed", err, slog.Uint64("ino", ino))
		return nil, err
	}
	if req.Size != nil && attr.IsDir() {
		return nil, newError(KindIsDirectory, "cannot change size of directory %d", ino)
	}
	if req.Size != nil && *req.Size > MaxFileSize {
		err = newError(KindFileTooLarge, "size %d exceeds %d", *req.Size, MaxFileSize)
		logResult(logger, "SetAttr failed", err, slog.Uint64("ino", ino))
		return nil, err
	}

	// Classify before the size field changes.
	cmp := models.Equal
	if req.Size != nil {
		if cmp, err = s.attrRepo.CompareSize(ino, *req.Size); err != nil {
			return nil, wrapError(KindInternal, err, "compare size of %d", ino)
		}
	}

	var errs []error
	if req.Mode != nil {
		errs = append(errs, s.attrRepo.UpdatePerm(ino, *req.Mode&permMask))
	}
	if req.Uid != nil {
		errs = append(errs, s.attrRepo.UpdateUid(ino, *req.Uid))
	}
	if req.Gid != nil {
		errs = append(errs, s.attrRepo.UpdateGid(ino, *req.Gid))
	}
	if req.Size != nil {
		errs = append(errs, s.attrRepo.UpdateSize(ino, *req.Size))
	}
	if req.Atime != nil {
		errs = append(errs, s.attrRepo.UpdateAtime(ino, *req.Atime))
	}
	if req.Mtime != nil {
		errs = append(errs, s.attrRepo.UpdateMtime(ino, *req.Mtime))
	}
	errs = append(errs, s.attrRepo.UpdateCtime(ino, s.clock.Now()))
	if err := updated(ino, errs...); err != nil {
		logResult(logger, "SetAttr failed", err, slog.Uint64("ino", ino))
		return nil, err
	}

	j := s.newJournal()
	if req.Size != nil {
		current, err := s.contentRepo.Get(ino)
		if err != nil {
			err = wrapError(KindInternal, err, "file %d has no content", ino)
			logResult(logger, "SetAttr failed", err, slog.Uint64("ino", ino))
			return nil, err
		}

		switch cmp {
		case models.Smaller, models.Larger:
			s.contentRepo.Set(ino, resize(current, *req.Size))
		case models.Equal:
		}

		logger.Debug("Resized content",
			slog.Uint64("ino", ino),
			slog.String("compare", cmp.String()),
			slog.Uint64("size", *req.Size),
		)
		j.content(ino)
	}
	j.attr(ino)

	if err := j.flush(ctx); err != nil {
		logResult(logger, "SetAttr failed", err, slog.Uint64("ino", ino))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	updated, err := s.attrRepo.Get(ino)
	if err != nil {
		return nil, wrapError(KindInternal, err, "attr of %d vanished", ino)
	}
	return updated, nil
}

// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) newChild(parent uint64, name string, kind models.FileType, mode uint32) (models.Attr, error) {
	if _, err := s.liveDirAttr(parent); err != nil {
		return models.Attr{}, err
	}
	if _, err := s.findChild(parent, name); err == nil {
		return models.Attr{}, newError(KindExists, "%q already exists in %d", name, parent)
	} else if !errors.Is(err, ErrNotFound) {
		return models.Attr{}, err
	}

	now := s.clock.Now()
	attr := models.Attr{
		Ino:   s.fsRepo.NewIno(),
		Size:  0,
		Name:  name,
		Kind:  kind,
		Perm:  mode & permMask,
		Uid:   s.opts.DefaultUid,
		Gid:   s.opts.DefaultGid,
		Nlink: 1,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}

	if err := s.attrRepo.IncrementSize(parent); err != nil {
		return models.Attr{}, wrapError(KindInternal, err, "increment size of %d", parent)
	}
	if err := s.modified(parent, now); err != nil {
		return models.Attr{}, err
	}
	s.attrRepo.Put(attr)

	return attr, nil
}

// Create returns the attributes of parent, not of the new file; callers look
// the child up to obtain its own attributes.
func (s *fileSystemService) Create(ctx context.Context, parent uint64, name string, mode uint32, flags uint32) (*models.Attr, error) {
	const op = "service.fileSystemService.Create"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Create",
		slog.Uint64("parent_ino", parent),
		slog.String("name", name),
		slog.Uint64("mode", uint64(mode)),
		slog.Uint64("flags", uint64(flags)),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	attr, err := s.newChild(parent, name, models.FileTypeFile, mode)
	if err != nil {
		logResult(logger, "Create failed", err, slog.Uint64("parent_ino", parent), slog.String("name", name))
		return nil, err
	}

	s.contentRepo.Set(attr.Ino, []byte{})
	s.dirRepo.AppendChild(parent, attr.Ino)

	err = s.newJournal().
		attr(parent).
		attr(attr.Ino).
		content(attr.Ino).
		entry(parent).
		flush(ctx)
	if err != nil {
		logResult(logger, "Create failed", err, slog.Uint64("ino", attr.Ino))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("File created successfully",
		slog.String("name", name),
		slog.Uint64("ino", attr.Ino),
		slog.Uint64("parent_ino", parent),
	)

	parentAttr, err := s.attrRepo.Get(parent)
	if err != nil {
		return nil, wrapError(KindInternal, err, "parent %d vanished", parent)
	}
	return parentAttr, nil
}

func (s *fileSystemService) Mkdir(ctx context.Context, parent uint64, name string, mode uint32) (*models.Attr, error) {
	const op = "service.fileSystemService.Mkdir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Mkdir",
		slog.Uint64("parent_ino", parent),
		slog.String("name", name),
		slog.Uint64("mode", uint64(mode)),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	attr, err := s.newChild(parent, name, models.FileTypeDir, mode)
	if err != nil {
		logResult(logger, "Mkdir failed", err, slog.Uint64("parent_ino", parent), slog.String("name", name))
		return nil, err
	}

	s.dirRepo.CreateEntry(attr.Ino)
	s.dirRepo.AppendChild(parent, attr.Ino)

	// The kernel holds a reference on a directory it has just created.
	s.lookups.Touch(attr.Ino)

	err = s.newJournal().
		attr(parent).
		attr(attr.Ino).
		entry(attr.Ino).
		entry(parent).
		flush(ctx)
	if err != nil {
		logResult(logger, "Mkdir failed", err, slog.Uint64("ino", attr.Ino))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Directory created successfully",
		slog.String("name", name),
		slog.Uint64("ino", attr.Ino),
		slog.Uint64("parent_ino", parent),
	)
	return &attr, nil
}

// detach removes child from parent and either reclaims it or marks it for
// reclamation once the kernel forgets it. It reports whether the child was
// reclaimed.
//
// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) detach(parent uint64, child *models.Attr) (bool, error) {
	s.dirRepo.RemoveChild(parent, child.Ino)
	if err := s.attrRepo.DecrementSize(parent); err != nil {
		return false, wrapError(KindInternal, err, "decrement size of %d", parent)
	}

	if err := s.modified(parent, s.clock.Now()); err != nil {
		return false, err
	}

	if s.lookups.RequestDelete(child.Ino) == repository.DeleteDeferred {
		if err := updated(child.Ino, s.attrRepo.UpdateNlink(child.Ino, 0)); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := s.reclaim(child); err != nil {
		return false, err
	}
	return true, nil
}

// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) reclaim(attr *models.Attr) error {
	if _, err := s.attrRepo.Delete(attr.Ino); err != nil {
		return wrapError(KindInternal, err, "reclaim %d", attr.Ino)
	}
	if attr.IsDir() {
		s.dirRepo.Delete(attr.Ino)
	} else {
		s.contentRepo.Delete(attr.Ino)
	}
	s.lookups.Prune(attr.Ino)
	return nil
}

// modified stamps mtime and ctime of ino.
//
// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) modified(ino uint64, now time.Time) error {
	return updated(ino, s.attrRepo.UpdateMtime(ino, now), s.attrRepo.UpdateCtime(ino, now))
}

// updated turns the first failed attribute update of ino into an internal
// error. Updates only fail for inodes missing from the table.
func updated(ino uint64, errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return wrapError(KindInternal, err, "update attributes of %d", ino)
		}
	}
	return nil
}

// tombstones records the removal of a reclaimed inode.
func (j *journal) tombstones(attr *models.Attr) *journal {
	j.tombstoneAttr(attr.Ino)
	if !attr.IsDir() {
		j.tombstoneContent(attr.Ino)
	}
	return j
}

func (s *fileSystemService) Unlink(ctx context.Context, parent uint64, name string) error {
	const op = "service.fileSystemService.Unlink"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Unlink", slog.Uint64("parent_ino", parent), slog.String("name", name))

	s.mu.Lock()
	defer s.mu.Unlock()

	child, err := s.findChild(parent, name)
	if err != nil {
		logResult(logger, "Unlink failed", err, slog.Uint64("parent_ino", parent), slog.String("name", name))
		return err
	}
	if child.IsDir() {
		return newError(KindIsDirectory, "%q in %d is a directory", name, parent)
	}

	reclaimed, err := s.detach(parent, child)
	if err != nil {
		logResult(logger, "Unlink failed", err, slog.Uint64("ino", child.Ino))
		return err
	}

	j := s.newJournal().attr(parent).entry(parent)
	if reclaimed {
		j.tombstones(child)
	}
	if err := j.flush(ctx); err != nil {
		logResult(logger, "Unlink failed", err, slog.Uint64("ino", child.Ino))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("File unlinked successfully",
		slog.String("name", name),
		slog.Uint64("ino", child.Ino),
		slog.Bool("reclaimed", reclaimed),
	)
	return nil
}

func (s *fileSystemService) Rmdir(ctx context.Context, parent uint64, name string) error {
	const op = "service.fileSystemService.Rmdir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Rmdir", slog.Uint64("parent_ino", parent), slog.String("name", name))

	s.mu.Lock()
	defer s.mu.Unlock()

	child, err := s.findChild(parent, name)
	if err != nil {
		logResult(logger, "Rmdir failed", err, slog.Uint64("parent_ino", parent), slog.String("name", name))
		return err
	}
	if !child.IsDir() {
		return newError(KindNotDirectory, "%q in %d is not a directory", name, parent)
	}
	if !s.dirRepo.IsEmpty(child.Ino) {
		logger.Debug("Directory not empty", slog.Uint64("ino", child.Ino))
		return newError(KindDirectoryNotEmpty, "directory %q is not empty", name)
	}

	reclaimed, err := s.detach(parent, child)
	if err != nil {
		logResult(logger, "Rmdir failed", err, slog.Uint64("ino", child.Ino))
		return err
	}

	j := s.newJournal().attr(parent).entry(parent)
	if reclaimed {
		j.tombstones(child)
	}
	if err := j.flush(ctx); err != nil {
		logResult(logger, "Rmdir failed", err, slog.Uint64("ino", child.Ino))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Directory removed successfully",
		slog.String("name", name),
		slog.Uint64("ino", child.Ino),
		slog.Bool("reclaimed", reclaimed),
	)
	return nil
}

func (s *fileSystemService) Forget(ctx context.Context, ino uint64, nlookup uint64) error {
	const op = "service.fileSystemService.Forget"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	s.mu.Lock()
	defer s.mu.Unlock()

	if nlookup > s.lookups.Count(ino) {
		logger.Warn("Forget exceeds lookup count, clamping",
			slog.Uint64("ino", ino),
			slog.Uint64("nlookup", nlookup),
			slog.Uint64("lookup_count", s.lookups.Count(ino)),
		)
	}

	remaining, known := s.lookups.Forget(ino, nlookup)
	if !known {
		logger.Debug("Forget of untracked inode", slog.Uint64("ino", ino))
		return nil
	}
	if remaining > 0 || !s.lookups.PendingDelete(ino) {
		return nil
	}

	attr, err := s.attrRepo.Get(ino)
	if err != nil {
		err = wrapError(KindInternal, err, "pending delete of %d has no attributes", ino)
		logResult(logger, "Forget failed", err, slog.Uint64("ino", ino))
		return err
	}

	if err := s.reclaim(attr); err != nil {
		logResult(logger, "Forget failed", err, slog.Uint64("ino", ino))
		return err
	}

	if err := s.newJournal().tombstones(attr).flush(ctx); err != nil {
		logResult(logger, "Forget failed", err, slog.Uint64("ino", ino))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Inode reclaimed", slog.Uint64("ino", ino), slog.String("kind", attr.Kind.String()))
	return nil
}

// isAncestor reports whether ancestor is dir or one of its ancestors.
//
// LOCKS_REQUIRED(s.mu)
func (s *fileSystemService) isAncestor(ancestor, dir uint64) bool {
	if ancestor == dir {
		return true
	}
	for _, child := range s.dirRepo.GetChildren(ancestor) {
		if s.dirRepo.Exists(child) && s.isAncestor(child, dir) {
			return true
		}
	}
	return false
}

func (s *fileSystemService) Rename(ctx context.Context, parent uint64, name string, newParent uint64, newName string) error {
	const op = "service.fileSystemService.Rename"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Rename",
		slog.Uint64("parent_ino", parent),
		slog.String("name", name),
		slog.Uint64("new_parent_ino", newParent),
		slog.String("new_name", newName),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.findChild(parent, name)
	if err != nil {
		logResult(logger, "Rename failed", err, slog.Uint64("parent_ino", parent), slog.String("name", name))
		return err
	}
	if _, err := s.liveDirAttr(newParent); err != nil {
		logResult(logger, "Rename failed", err, slog.Uint64("new_parent_ino", newParent))
		return err
	}
	if parent == newParent && name == newName {
		return nil
	}
	if src.IsDir() && s.isAncestor(src.Ino, newParent) {
		return newError(KindInvalid, "cannot move directory %d into itself", src.Ino)
	}

	target, err := s.findChild(newParent, newName)
	switch {
	case errors.Is(err, ErrNotFound):
		target = nil
	case err != nil:
		logResult(logger, "Rename failed", err, slog.Uint64("new_parent_ino", newParent))
		return err
	case target.Ino == src.Ino:
		target = nil
	case target.IsDir() && !src.IsDir():
		return newError(KindIsDirectory, "%q in %d is a directory", newName, newParent)
	case !target.IsDir() && src.IsDir():
		return newError(KindNotDirectory, "%q in %d is not a directory", newName, newParent)
	case target.IsDir() && !s.dirRepo.IsEmpty(target.Ino):
		return newError(KindDirectoryNotEmpty, "directory %q is not empty", newName)
	}

	reclaimed := false
	if target != nil {
		if reclaimed, err = s.detach(newParent, target); err != nil {
			logResult(logger, "Rename failed", err, slog.Uint64("ino", target.Ino))
			return err
		}
	}

	now := s.clock.Now()
	if parent != newParent {
		if err := s.dirRepo.MoveChild(src.Ino, parent, newParent); err != nil {
			err = wrapError(KindInternal, err, "move %d from %d to %d", src.Ino, parent, newParent)
			logResult(logger, "Rename failed", err, slog.Uint64("ino", src.Ino))
			return err
		}
		err := updated(parent, s.attrRepo.DecrementSize(parent), s.modified(parent, now))
		if err == nil {
			err = updated(newParent, s.attrRepo.IncrementSize(newParent), s.modified(newParent, now))
		}
		if err != nil {
			logResult(logger, "Rename failed", err, slog.Uint64("ino", src.Ino))
			return err
		}
	}
	if err := updated(src.Ino, s.attrRepo.UpdateName(src.Ino, newName), s.attrRepo.UpdateCtime(src.Ino, now)); err != nil {
		logResult(logger, "Rename failed", err, slog.Uint64("ino", src.Ino))
		return err
	}

	j := s.newJournal().attr(src.Ino).attr(parent)
	if parent != newParent {
		j.attr(newParent)
	}
	j.entry(parent)
	if parent != newParent {
		j.entry(newParent)
	}
	if reclaimed {
		j.tombstones(target)
	}
	if err := j.flush(ctx); err != nil {
		logResult(logger, "Rename failed", err, slog.Uint64("ino", src.Ino))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Renamed successfully",
		slog.Uint64("ino", src.Ino),
		slog.String("new_name", newName),
		slog.Bool("overwrote", target != nil),
	)
	return nil
}

func (s *fileSystemService) Statfs(ctx context.Context) models.Statfs {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st models.Statfs
	for _, attr := range s.attrRepo.Snapshot() {
		st.Inodes++
		if !attr.IsDir() {
			st.Bytes += attr.Size
		}
	}
	return st
}

// Snapshot copies the current tables, e.g. to compact the log.
func (s *fileSystemService) Snapshot() *storage.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &storage.Snapshot{
		NextIno:  s.fsRepo.PeekNextIno(),
		Attrs:    s.attrRepo.Snapshot(),
		Entries:  s.dirRepo.Snapshot(),
		Contents: s.contentRepo.Snapshot(),
	}
}
