package yamllog

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/S1riyS/hfs/internal/models"
)

const encodingBase64 = "base64"

type manifest struct {
	Attr  string `yaml:"attr"`
	Entry string `yaml:"entry"`
	Data  string `yaml:"data"`
}

type attrRecord struct {
	Ino      uint64    `yaml:"ino"`
	Deleted  bool      `yaml:"deleted,omitempty"`
	Name     string    `yaml:"name,omitempty"`
	FileType int16     `yaml:"file-type"`
	Size     uint64    `yaml:"size"`
	Perm     uint32    `yaml:"perm"`
	Uid      uint32    `yaml:"uid"`
	Gid      uint32    `yaml:"gid"`
	Nlink    uint32    `yaml:"nlink,omitempty"`
	Atime    time.Time `yaml:"atime,omitempty"`
	Mtime    time.Time `yaml:"mtime,omitempty"`
	Ctime    time.Time `yaml:"ctime,omitempty"`
}

func newAttrRecord(attr models.Attr) attrRecord {
	return attrRecord{
		Ino:      attr.Ino,
		Name:     attr.Name,
		FileType: int16(attr.Kind),
		Size:     attr.Size,
		Perm:     attr.Perm,
		Uid:      attr.Uid,
		Gid:      attr.Gid,
		Nlink:    attr.Nlink,
		Atime:    attr.Atime.UTC(),
		Mtime:    attr.Mtime.UTC(),
		Ctime:    attr.Ctime.UTC(),
	}
}

func (r attrRecord) attr() (models.Attr, error) {
	kind := models.FileType(r.FileType)
	if !kind.Valid() {
		return models.Attr{}, fmt.Errorf("ino %d: unknown file-type %d", r.Ino, r.FileType)
	}

	nlink := r.Nlink
	if nlink == 0 {
		nlink = 1
	}

	return models.Attr{
		Ino:   r.Ino,
		Size:  r.Size,
		Name:  r.Name,
		Kind:  kind,
		Perm:  r.Perm,
		Uid:   r.Uid,
		Gid:   r.Gid,
		Nlink: nlink,
		Atime: r.Atime,
		Mtime: r.Mtime,
		Ctime: r.Ctime,
	}, nil
}

type entryRecord struct {
	Ino   uint64   `yaml:"ino"`
	Files []uint64 `yaml:"files,flow"`
}

// dataRecord stores payloads base64-encoded. Records without an encoding
// hold plain text, as written by older images.
type dataRecord struct {
	Ino      uint64 `yaml:"ino"`
	Deleted  bool   `yaml:"deleted,omitempty"`
	Encoding string `yaml:"encoding,omitempty"`
	Data     string `yaml:"data"`
}

func newDataRecord(ino uint64, data []byte) dataRecord {
	return dataRecord{
		Ino:      ino,
		Encoding: encodingBase64,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

func (r dataRecord) payload() ([]byte, error) {
	switch r.Encoding {
	case "":
		return []byte(r.Data), nil
	case encodingBase64:
		data, err := base64.StdEncoding.DecodeString(r.Data)
		if err != nil {
			return nil, fmt.Errorf("ino %d: %w", r.Ino, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("ino %d: unknown encoding %q", r.Ino, r.Encoding)
	}
}
