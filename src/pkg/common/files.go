package common

import (
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
)

const (
	XIDSuffix = ".xid"
	DBSuffix  = ".db"
	LogSuffix = ".log"
)

// CreateFile creates a fresh read-write file. It fails with ErrFileExists if
// something is already present at path.
func CreateFile(fs afero.Fs, path string) (afero.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "mkdir %s", dir)
		}
	}

	file, err := fs.OpenFile(
		filepath.Clean(path),
		os.O_RDWR|os.O_CREATE|os.O_EXCL,
		0o600,
	)
	if errors.Is(err, os.ErrExist) {
		return nil, errors.Wrap(ErrFileExists, path)
	} else if err != nil {
		return nil, errors.Wrapf(ErrFileUnreadable, "%s: %v", path, err)
	}

	return file, nil
}

// OpenFile opens an existing file for reading and writing.
func OpenFile(fs afero.Fs, path string) (afero.File, error) {
	ok, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	if !ok {
		return nil, errors.Wrap(ErrFileNotFound, path)
	}

	file, err := fs.OpenFile(filepath.Clean(path), os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrapf(ErrFileUnreadable, "%s: %v", path, err)
	}

	return file, nil
}
