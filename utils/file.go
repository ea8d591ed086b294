package utils

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// RemoveFileNoError will remove the file at the given path if it exists. Any
// errors will be suppressed.
func RemoveFileNoError(path string) {
	utils.UncheckedErrorFunc(func() error {
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
		return nil
	})
}

// WriteFileAtomic writes data to a temporary file next to path and renames it into place, so
// readers only ever see the previous contents or the complete new contents.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %q", path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		utils.UncheckedError(tmp.Close())
		RemoveFileNoError(tmpName)
		return errors.Wrapf(err, "writing %q", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		utils.UncheckedError(tmp.Close())
		RemoveFileNoError(tmpName)
		return errors.Wrapf(err, "syncing %q", tmpName)
	}
	if err := tmp.Close(); err != nil {
		RemoveFileNoError(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		RemoveFileNoError(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		RemoveFileNoError(tmpName)
		return errors.Wrapf(err, "replacing %q", path)
	}
	return nil
}
