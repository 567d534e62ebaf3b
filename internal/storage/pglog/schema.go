package pglog

const schema = `
CREATE TABLE IF NOT EXISTS attr_log (
	seq       BIGSERIAL PRIMARY KEY,
	fs_name   TEXT        NOT NULL,
	ino       BIGINT      NOT NULL,
	deleted   BOOLEAN     NOT NULL DEFAULT FALSE,
	name      TEXT        NOT NULL DEFAULT '',
	file_type SMALLINT    NOT NULL DEFAULT 0,
	size      BIGINT      NOT NULL DEFAULT 0,
	perm      INTEGER     NOT NULL DEFAULT 0,
	uid       BIGINT      NOT NULL DEFAULT 0,
	gid       BIGINT      NOT NULL DEFAULT 0,
	nlink     BIGINT      NOT NULL DEFAULT 0,
	atime     TIMESTAMPTZ,
	mtime     TIMESTAMPTZ,
	ctime     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS entry_log (
	seq      BIGSERIAL PRIMARY KEY,
	fs_name  TEXT     NOT NULL,
	ino      BIGINT   NOT NULL,
	children BIGINT[] NOT NULL
);

CREATE TABLE IF NOT EXISTS content_log (
	seq     BIGSERIAL PRIMARY KEY,
	fs_name TEXT    NOT NULL,
	ino     BIGINT  NOT NULL,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	data    BYTEA
);

CREATE INDEX IF NOT EXISTS attr_log_fs_seq ON attr_log (fs_name, seq);
CREATE INDEX IF NOT EXISTS entry_log_fs_seq ON entry_log (fs_name, seq);
CREATE INDEX IF NOT EXISTS content_log_fs_seq ON content_log (fs_name, seq);
`
