package repository

import "errors"

var ErrNotFound = errors.New("inode not found")
