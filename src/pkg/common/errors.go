package common

import "github.com/go-faster/errors"

var (
	ErrFileExists     = errors.New("file already exists")
	ErrFileNotFound   = errors.New("file does not exist")
	ErrFileUnreadable = errors.New("file is not readable and writable")
)
