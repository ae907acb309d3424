package delivery

import (
	"os"
	"path/filepath"
)

func EnsureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers never observe a half-written archive.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := EnsureParent(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
