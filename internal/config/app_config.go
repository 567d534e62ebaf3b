package config

type AppConfig struct {
	Mountpoint string `yaml:"mountpoint" env:"HFS_MOUNTPOINT"`
	FSName     string `yaml:"fs_name" env:"HFS_FS_NAME" env-default:"hfs"`
	DefaultUid uint32 `yaml:"default_uid" env-default:"1000"`
	DefaultGid uint32 `yaml:"default_gid" env-default:"1000"`
	// WholeRead makes read return the full payload regardless of offset and
	// size, the way older hfs builds behaved.
	WholeRead       bool `yaml:"whole_read" env:"HFS_WHOLE_READ"`
	CheckInvariants bool   `yaml:"check_invariants" env:"HFS_CHECK_INVARIANTS"`
}

type ImageConfig struct {
	// Backend is either "yaml" or "postgres".
	Backend string `yaml:"backend" env:"HFS_BACKEND" env-default:"yaml"`
	// Location is the manifest path for the yaml backend and the filesystem
	// name for the postgres backend.
	Location string `yaml:"location" env:"HFS_IMAGE" env-default:"image.yaml"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"HFS_LOG_LEVEL" env-default:"info"`
	Format     string `yaml:"format" env:"HFS_LOG_FORMAT" env-default:"pretty"`
	File       string `yaml:"file" env:"HFS_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env-default:"3"`
}
