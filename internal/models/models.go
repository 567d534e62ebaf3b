package models

import "time"

type FileType int16

const (
	FileTypeDir  FileType = 0
	FileTypeFile FileType = 1
)

// Valid reports whether t is one of the known file types.
func (t FileType) Valid() bool {
	return t == FileTypeDir || t == FileTypeFile
}

func (t FileType) String() string {
	switch t {
	case FileTypeDir:
		return "directory"
	case FileTypeFile:
		return "file"
	default:
		return "unknown"
	}
}

// Attr is the metadata record of a single inode. Name is the local name of
// the inode inside its parent; the tree itself is described by directory
// entries, not by this field.
type Attr struct {
	Ino   uint64
	Size  uint64
	Name  string
	Kind  FileType
	Perm  uint32
	Uid   uint32
	Gid   uint32
	Nlink uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

func (a *Attr) IsDir() bool {
	return a.Kind == FileTypeDir
}

type Dirent struct {
	Ino  uint64
	Name string
	Type FileType
}

// Compare classifies the current size of an inode against a candidate size.
type Compare int

const (
	Smaller Compare = iota - 1
	Equal
	Larger
)

func (c Compare) String() string {
	switch c {
	case Smaller:
		return "smaller"
	case Equal:
		return "equal"
	case Larger:
		return "larger"
	default:
		return "unknown"
	}
}

// SetAttrRequest carries the optional fields of a setattr call. Nil fields
// are left untouched.
type SetAttrRequest struct {
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Size  *uint64
	Atime *time.Time
	Mtime *time.Time
}

type Statfs struct {
	Inodes uint64
	Bytes  uint64
}
