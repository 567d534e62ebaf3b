package slogext

import "log/slog"

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

func Ino(key string, ino uint64) slog.Attr {
	return slog.Uint64(key, ino)
}
