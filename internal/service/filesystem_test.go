package service

import (
	"context"
	"testing"
	"time"

	"github.com/S1riyS/hfs/internal/models"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	syncutil.EnableInvariantChecking()
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	clock *timeutil.SimulatedClock
	log   *memLog
	fs    FileSystemService
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		ctx:   context.Background(),
		clock: &timeutil.SimulatedClock{},
		log:   newMemLog(epoch),
	}
	f.clock.SetTime(epoch)
	f.fs = NewFileSystemService(f.log, f.clock, opts)
	require.NoError(t, f.fs.Init(f.ctx, "mem"))

	return f
}

// reopen replays the log into a fresh service.
func (f *fixture) reopen(t *testing.T) FileSystemService {
	t.Helper()

	fs := NewFileSystemService(f.log, f.clock, Options{})
	require.NoError(t, fs.Init(f.ctx, "mem"))
	return fs
}

func (f *fixture) create(t *testing.T, parent uint64, name string) uint64 {
	t.Helper()

	_, err := f.fs.Create(f.ctx, parent, name, 0o644, 0)
	require.NoError(t, err)
	attr, err := f.fs.Lookup(f.ctx, parent, name)
	require.NoError(t, err)
	return attr.Ino
}

func (f *fixture) forget(t *testing.T, ino uint64, n uint64) {
	t.Helper()
	require.NoError(t, f.fs.Forget(f.ctx, ino, n))
}

func TestInitLoadsRoot(t *testing.T) {
	f := newFixture(t, Options{})

	root, err := f.fs.GetAttr(f.ctx, f.fs.Root())
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, uint64(0), root.Size)
	assert.Equal(t, uint64(2), f.fs.NewIno())
}

func TestInitFailsOnBrokenImage(t *testing.T) {
	log := &memLog{}
	fs := NewFileSystemService(log, &timeutil.SimulatedClock{}, Options{})

	err := fs.Init(context.Background(), "mem")
	require.Error(t, err)
}

func TestCreateReturnsParentAttr(t *testing.T) {
	f := newFixture(t, Options{DefaultUid: 42, DefaultGid: 43})

	parent, err := f.fs.Create(f.ctx, RootIno, "a.txt", 0o100644, 0)
	require.NoError(t, err)
	assert.Equal(t, RootIno, parent.Ino)
	assert.Equal(t, uint64(1), parent.Size)

	child, err := f.fs.Lookup(f.ctx, RootIno, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, models.FileTypeFile, child.Kind)
	assert.Equal(t, uint32(0o644), child.Perm)
	assert.Equal(t, uint32(42), child.Uid)
	assert.Equal(t, uint32(43), child.Gid)
	assert.Equal(t, uint32(1), child.Nlink)
	assert.Equal(t, uint64(0), child.Size)
	assert.Equal(t, epoch, child.Ctime)
}

func TestCreateAppendOrder(t *testing.T) {
	f := newFixture(t, Options{})
	n := len(f.log.records)

	_, err := f.fs.Create(f.ctx, RootIno, "a.txt", 0o644, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"attr:1", "attr:2", "content:2", "entry:1"}, f.log.since(n))
}

func TestMkdirAppendOrder(t *testing.T) {
	f := newFixture(t, Options{})
	n := len(f.log.records)

	dir, err := f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)
	assert.True(t, dir.IsDir())
	assert.Equal(t, uint64(2), dir.Ino)

	assert.Equal(t, []string{"attr:1", "attr:2", "entry:2", "entry:1"}, f.log.since(n))
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t, Options{})
	file := f.create(t, RootIno, "a.txt")

	_, err := f.fs.Create(f.ctx, RootIno, "a.txt", 0o644, 0)
	assert.ErrorIs(t, err, ErrExists)

	_, err = f.fs.Create(f.ctx, file, "b.txt", 0o644, 0)
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = f.fs.Mkdir(f.ctx, 99, "d", 0o755)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChildCountTracksChildren(t *testing.T) {
	f := newFixture(t, Options{})

	dir, err := f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		f.create(t, dir.Ino, name)
	}
	_, err = f.fs.Mkdir(f.ctx, dir.Ino, "sub", 0o755)
	require.NoError(t, err)

	attr, err := f.fs.GetAttr(f.ctx, dir.Ino)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), attr.Size)

	require.NoError(t, f.fs.Unlink(f.ctx, dir.Ino, "b"))
	attr, err = f.fs.GetAttr(f.ctx, dir.Ino)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), attr.Size)

	dirents, err := f.fs.ReadDir(f.ctx, dir.Ino)
	require.NoError(t, err)
	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "c", "sub"}, names)
}

func TestLookupMissing(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.fs.Lookup(f.ctx, RootIno, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(2), se.GetCode())
}

func TestWriteReadRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")

	size, err := f.fs.Write(f.ctx, ino, 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), size)

	data, err := f.fs.Read(f.ctx, ino, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = f.fs.Read(f.ctx, ino, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("ell"), data)

	data, err = f.fs.Read(f.ctx, ino, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWholeReadIgnoresRange(t *testing.T) {
	f := newFixture(t, Options{WholeRead: true})
	ino := f.create(t, RootIno, "a.txt")

	_, err := f.fs.Write(f.ctx, ino, 0, []byte("hello"))
	require.NoError(t, err)

	data, err := f.fs.Read(f.ctx, ino, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestWritePastEndZeroFills(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")

	_, err := f.fs.Write(f.ctx, ino, 0, []byte("ab"))
	require.NoError(t, err)
	size, err := f.fs.Write(f.ctx, ino, 5, []byte("xy"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), size)

	data, err := f.fs.Read(f.ctx, ino, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab\x00\x00\x00xy"), data)
}

func TestWriteOverwritesInPlace(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")

	_, err := f.fs.Write(f.ctx, ino, 0, []byte("hello world"))
	require.NoError(t, err)
	size, err := f.fs.Write(f.ctx, ino, 6, []byte("there"))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), size)

	data, err := f.fs.Read(f.ctx, ino, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello there"), data)
}

func TestWriteUpdatesTimesAndAppendOrder(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")
	n := len(f.log.records)

	f.clock.AdvanceTime(time.Minute)
	_, err := f.fs.Write(f.ctx, ino, 0, []byte("x"))
	require.NoError(t, err)

	attr, err := f.fs.GetAttr(f.ctx, ino)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Minute), attr.Mtime)
	assert.Equal(t, epoch.Add(time.Minute), attr.Ctime)
	assert.Equal(t, []string{"content:2", "attr:2"}, f.log.since(n))
}

func TestWriteErrors(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")

	_, err := f.fs.Write(f.ctx, 99, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.fs.Write(f.ctx, RootIno, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrIsDirectory)

	_, err = f.fs.Write(f.ctx, ino, -1, []byte("x"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFileSizeLimit(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")
	_, err := f.fs.Write(f.ctx, ino, 0, []byte("hello"))
	require.NoError(t, err)
	n := len(f.log.records)

	_, err = f.fs.Write(f.ctx, ino, 1<<62, []byte("x"))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = f.fs.Write(f.ctx, ino, int64(MaxFileSize), []byte("x"))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	huge := uint64(8) << 60
	_, err = f.fs.SetAttr(f.ctx, ino, models.SetAttrRequest{Size: &huge})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	attr, err := f.fs.GetAttr(f.ctx, ino)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), attr.Size)
	data, err := f.fs.Read(f.ctx, ino, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Empty(t, f.log.since(n))
}

func TestSetAttrSize(t *testing.T) {
	testCases := []struct {
		name string
		size uint64
		want []byte
	}{
		{name: "truncate", size: 2, want: []byte("he")},
		{name: "extend", size: 7, want: []byte("hello\x00\x00")},
		{name: "same", size: 5, want: []byte("hello")},
		{name: "empty", size: 0, want: []byte{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			ino := f.create(t, RootIno, "a.txt")
			_, err := f.fs.Write(f.ctx, ino, 0, []byte("hello"))
			require.NoError(t, err)

			attr, err := f.fs.SetAttr(f.ctx, ino, models.SetAttrRequest{Size: &tc.size})
			require.NoError(t, err)
			assert.Equal(t, tc.size, attr.Size)

			data, err := f.fs.Read(f.ctx, ino, 0, 100)
			require.NoError(t, err)
			assert.Equal(t, tc.want, data)
		})
	}
}

func TestSetAttrFields(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")
	n := len(f.log.records)

	mode := uint32(0o100600)
	uid := uint32(7)
	mtime := epoch.Add(-time.Hour)
	f.clock.AdvanceTime(time.Second)

	attr, err := f.fs.SetAttr(f.ctx, ino, models.SetAttrRequest{Mode: &mode, Uid: &uid, Mtime: &mtime})
	require.NoError(t, err)
	assert.Equal(t, uint32(0o600), attr.Perm)
	assert.Equal(t, uint32(7), attr.Uid)
	assert.Equal(t, mtime, attr.Mtime)
	assert.Equal(t, epoch.Add(time.Second), attr.Ctime)

	// Without a size change the content is not rewritten.
	assert.Equal(t, []string{"attr:2"}, f.log.since(n))
}

func TestSetAttrDirectorySize(t *testing.T) {
	f := newFixture(t, Options{})
	size := uint64(10)

	_, err := f.fs.SetAttr(f.ctx, RootIno, models.SetAttrRequest{Size: &size})
	assert.ErrorIs(t, err, ErrIsDirectory)
}

func TestForgetClampsAtZero(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")

	f.forget(t, ino, 100)

	// A subsequent unlink must not be deferred by a wrapped-around count.
	require.NoError(t, f.fs.Unlink(f.ctx, RootIno, "a.txt"))
	_, err := f.fs.GetAttr(f.ctx, ino)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForgetUnknownInode(t *testing.T) {
	f := newFixture(t, Options{})
	n := len(f.log.records)

	f.forget(t, 99, 1)
	assert.Empty(t, f.log.since(n))
}

func TestUnlinkWithoutLookupsDeletesNow(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")
	f.forget(t, ino, 1)
	n := len(f.log.records)

	require.NoError(t, f.fs.Unlink(f.ctx, RootIno, "a.txt"))

	_, err := f.fs.GetAttr(f.ctx, ino)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"attr:1", "entry:1", "-attr:2", "-content:2"}, f.log.since(n))
}

func TestUnlinkDefersWhileLookedUp(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")
	_, err := f.fs.Lookup(f.ctx, RootIno, "a.txt")
	require.NoError(t, err)
	n := len(f.log.records)

	require.NoError(t, f.fs.Unlink(f.ctx, RootIno, "a.txt"))
	assert.Equal(t, []string{"attr:1", "entry:1"}, f.log.since(n))

	// The name is gone but the inode survives.
	_, err = f.fs.Lookup(f.ctx, RootIno, "a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	attr, err := f.fs.GetAttr(f.ctx, ino)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), attr.Nlink)

	f.forget(t, ino, 1)
	_, err = f.fs.GetAttr(f.ctx, ino)
	require.NoError(t, err)

	f.forget(t, ino, 1)
	_, err = f.fs.GetAttr(f.ctx, ino)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"attr:1", "entry:1", "-attr:2", "-content:2"}, f.log.since(n))
}

func TestUnlinkDirectory(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)

	err = f.fs.Unlink(f.ctx, RootIno, "d")
	assert.ErrorIs(t, err, ErrIsDirectory)
}

func TestRmdirNotEmptyLeavesTablesUnchanged(t *testing.T) {
	f := newFixture(t, Options{})
	dir, err := f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)
	f.create(t, dir.Ino, "f.txt")

	before := f.fs.Snapshot()
	n := len(f.log.records)

	err = f.fs.Rmdir(f.ctx, RootIno, "d")
	assert.ErrorIs(t, err, ErrDirectoryNotEmpty)

	assert.Equal(t, before, f.fs.Snapshot())
	assert.Empty(t, f.log.since(n))
}

func TestRmdirFile(t *testing.T) {
	f := newFixture(t, Options{})
	f.create(t, RootIno, "f.txt")

	err := f.fs.Rmdir(f.ctx, RootIno, "f.txt")
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestDirectoryLifecycle(t *testing.T) {
	f := newFixture(t, Options{})

	dir, err := f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)
	file := f.create(t, dir.Ino, "f.txt")

	_, err = f.fs.Write(f.ctx, file, 0, []byte("hello"))
	require.NoError(t, err)
	data, err := f.fs.Read(f.ctx, file, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, f.fs.Unlink(f.ctx, dir.Ino, "f.txt"))
	_, err = f.fs.GetAttr(f.ctx, file)
	require.NoError(t, err, "file is still referenced")

	require.NoError(t, f.fs.Rmdir(f.ctx, RootIno, "d"))
	_, err = f.fs.GetAttr(f.ctx, dir.Ino)
	require.NoError(t, err, "directory is still referenced")

	f.forget(t, file, 1)
	f.forget(t, dir.Ino, 1)

	_, err = f.fs.GetAttr(f.ctx, file)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.fs.GetAttr(f.ctx, dir.Ino)
	assert.ErrorIs(t, err, ErrNotFound)

	root, err := f.fs.GetAttr(f.ctx, RootIno)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), root.Size)
}

func TestRenameOverwritesUnreferencedTarget(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.create(t, RootIno, "a")
	b := f.create(t, RootIno, "b")
	_, err := f.fs.Write(f.ctx, a, 0, []byte("from a"))
	require.NoError(t, err)
	f.forget(t, b, 1)

	require.NoError(t, f.fs.Rename(f.ctx, RootIno, "a", RootIno, "b"))

	_, err = f.fs.GetAttr(f.ctx, b)
	assert.ErrorIs(t, err, ErrNotFound)

	dirents, err := f.fs.ReadDir(f.ctx, RootIno)
	require.NoError(t, err)
	require.Len(t, dirents, 1)
	assert.Equal(t, "b", dirents[0].Name)
	assert.Equal(t, a, dirents[0].Ino)

	root, err := f.fs.GetAttr(f.ctx, RootIno)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), root.Size)

	snap := f.fs.Snapshot()
	assert.NotContains(t, snap.Contents, b)
}

func TestRenameDefersReferencedTarget(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.create(t, RootIno, "a")
	b := f.create(t, RootIno, "b")
	_, err := f.fs.Write(f.ctx, b, 0, []byte("old b"))
	require.NoError(t, err)
	n := len(f.log.records)

	require.NoError(t, f.fs.Rename(f.ctx, RootIno, "a", RootIno, "b"))
	assert.Equal(t, []string{"attr:2", "attr:1", "entry:1"}, f.log.since(n))

	attr, err := f.fs.GetAttr(f.ctx, b)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), attr.Nlink)
	data, err := f.fs.Read(f.ctx, b, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("old b"), data)

	found, err := f.fs.Lookup(f.ctx, RootIno, "b")
	require.NoError(t, err)
	assert.Equal(t, a, found.Ino)

	f.forget(t, b, 1)
	_, err = f.fs.GetAttr(f.ctx, b)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotContains(t, f.fs.Snapshot().Contents, b)
	assert.Equal(t,
		[]string{"attr:2", "attr:1", "entry:1", "-attr:3", "-content:3"},
		f.log.since(n))
}

func TestRenameOverwritesEmptyDirectory(t *testing.T) {
	t.Run("unreferenced", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.fs.Mkdir(f.ctx, RootIno, "src", 0o755)
		require.NoError(t, err)
		dst, err := f.fs.Mkdir(f.ctx, RootIno, "dst", 0o755)
		require.NoError(t, err)
		f.forget(t, dst.Ino, 1)
		n := len(f.log.records)

		require.NoError(t, f.fs.Rename(f.ctx, RootIno, "src", RootIno, "dst"))
		assert.Equal(t, []string{"attr:2", "attr:1", "entry:1", "-attr:3"}, f.log.since(n))
		assert.NotContains(t, f.fs.Snapshot().Entries, dst.Ino)
	})

	t.Run("referenced", func(t *testing.T) {
		f := newFixture(t, Options{})
		src, err := f.fs.Mkdir(f.ctx, RootIno, "src", 0o755)
		require.NoError(t, err)
		dst, err := f.fs.Mkdir(f.ctx, RootIno, "dst", 0o755)
		require.NoError(t, err)
		n := len(f.log.records)

		require.NoError(t, f.fs.Rename(f.ctx, RootIno, "src", RootIno, "dst"))
		assert.Equal(t, []string{"attr:2", "attr:1", "entry:1"}, f.log.since(n))
		assert.Contains(t, f.fs.Snapshot().Entries, dst.Ino)

		found, err := f.fs.Lookup(f.ctx, RootIno, "dst")
		require.NoError(t, err)
		assert.Equal(t, src.Ino, found.Ino)

		f.forget(t, dst.Ino, 1)
		_, err = f.fs.GetAttr(f.ctx, dst.Ino)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotContains(t, f.fs.Snapshot().Entries, dst.Ino)
		assert.Equal(t, []string{"attr:2", "attr:1", "entry:1", "-attr:3"}, f.log.since(n))

		root, err := f.fs.GetAttr(f.ctx, RootIno)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), root.Size)
	})
}

func TestRemovedDirectoryRejectsNewChildren(t *testing.T) {
	f := newFixture(t, Options{})
	dir, err := f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)
	f.create(t, RootIno, "file")
	require.NoError(t, f.fs.Rmdir(f.ctx, RootIno, "d"))
	n := len(f.log.records)

	_, err = f.fs.Create(f.ctx, dir.Ino, "x", 0o644, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.fs.Mkdir(f.ctx, dir.Ino, "sub", 0o755)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.fs.Rename(f.ctx, RootIno, "file", dir.Ino, "file")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.log.since(n))
	_, err = f.fs.Lookup(f.ctx, RootIno, "file")
	require.NoError(t, err)

	// Reclaiming the directory leaves no detached children behind.
	f.forget(t, dir.Ino, 1)
	_, err = f.fs.GetAttr(f.ctx, dir.Ino)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, f.fs.Snapshot().Attrs, 2)
}

func TestRenameAcrossDirectories(t *testing.T) {
	f := newFixture(t, Options{})
	src, err := f.fs.Mkdir(f.ctx, RootIno, "src", 0o755)
	require.NoError(t, err)
	dst, err := f.fs.Mkdir(f.ctx, RootIno, "dst", 0o755)
	require.NoError(t, err)
	file := f.create(t, src.Ino, "f")
	n := len(f.log.records)

	require.NoError(t, f.fs.Rename(f.ctx, src.Ino, "f", dst.Ino, "g"))

	assert.Equal(t,
		[]string{"attr:4", "attr:2", "attr:3", "entry:2", "entry:3"},
		f.log.since(n))

	attr, err := f.fs.Lookup(f.ctx, dst.Ino, "g")
	require.NoError(t, err)
	assert.Equal(t, file, attr.Ino)

	srcAttr, err := f.fs.GetAttr(f.ctx, src.Ino)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), srcAttr.Size)
	dstAttr, err := f.fs.GetAttr(f.ctx, dst.Ino)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), dstAttr.Size)
}

func TestRenameErrors(t *testing.T) {
	f := newFixture(t, Options{})
	dir, err := f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)
	sub, err := f.fs.Mkdir(f.ctx, dir.Ino, "sub", 0o755)
	require.NoError(t, err)
	f.create(t, sub.Ino, "x")
	f.create(t, RootIno, "file")
	_, err = f.fs.Mkdir(f.ctx, RootIno, "full", 0o755)
	require.NoError(t, err)
	full, err := f.fs.Lookup(f.ctx, RootIno, "full")
	require.NoError(t, err)
	f.create(t, full.Ino, "y")

	err = f.fs.Rename(f.ctx, RootIno, "missing", RootIno, "z")
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.fs.Rename(f.ctx, RootIno, "d", sub.Ino, "d")
	assert.ErrorIs(t, err, ErrInvalid)

	err = f.fs.Rename(f.ctx, RootIno, "file", RootIno, "d")
	assert.ErrorIs(t, err, ErrIsDirectory)

	err = f.fs.Rename(f.ctx, RootIno, "d", RootIno, "file")
	assert.ErrorIs(t, err, ErrNotDirectory)

	err = f.fs.Rename(f.ctx, RootIno, "d", RootIno, "full")
	assert.ErrorIs(t, err, ErrDirectoryNotEmpty)

	n := len(f.log.records)
	require.NoError(t, f.fs.Rename(f.ctx, RootIno, "file", RootIno, "file"))
	assert.Empty(t, f.log.since(n))
}

func TestReplayReproducesTables(t *testing.T) {
	f := newFixture(t, Options{})
	dir, err := f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)
	a := f.create(t, dir.Ino, "a")
	_, err = f.fs.Write(f.ctx, a, 3, []byte("data"))
	require.NoError(t, err)
	f.create(t, RootIno, "b")
	f.create(t, RootIno, "c")
	require.NoError(t, f.fs.Rename(f.ctx, RootIno, "b", dir.Ino, "b2"))
	require.NoError(t, f.fs.Unlink(f.ctx, RootIno, "c"))

	before := f.fs.Snapshot()
	after := f.reopen(t).Snapshot()

	// The unlinked file was still referenced, so its tombstones were never
	// written; replay drops it as unreachable.
	delete(before.Attrs, 5)
	delete(before.Contents, 5)

	assert.Equal(t, before.Attrs, after.Attrs)
	assert.Equal(t, before.Entries, after.Entries)
	assert.Equal(t, before.Contents, after.Contents)
	assert.Equal(t, before.NextIno, after.NextIno)
}

func TestPersistenceFailureSurfaces(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")

	f.log.fail = true
	_, err := f.fs.Write(f.ctx, ino, 0, []byte("lost"))
	require.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errDiskFull)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(5), se.GetCode())
}

func TestStatfs(t *testing.T) {
	f := newFixture(t, Options{})
	ino := f.create(t, RootIno, "a.txt")
	_, err := f.fs.Write(f.ctx, ino, 0, []byte("12345"))
	require.NoError(t, err)
	_, err = f.fs.Mkdir(f.ctx, RootIno, "d", 0o755)
	require.NoError(t, err)

	st := f.fs.Statfs(f.ctx)
	assert.Equal(t, uint64(3), st.Inodes)
	assert.Equal(t, uint64(5), st.Bytes)
}

func TestNewInoIsMonotonic(t *testing.T) {
	f := newFixture(t, Options{})

	first := f.fs.NewIno()
	second := f.fs.NewIno()
	assert.Greater(t, second, first)

	ino := f.create(t, RootIno, "a.txt")
	assert.Greater(t, ino, second)
}
