package filestore

import (
	"os"
	"path/filepath"

	jsonx "taskguard/internal/shared/json"
)

// EnsureDir creates the directory and all parents if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// AtomicWrite writes data to filePath through a temporary sibling file and a
// rename, so readers never observe a partial checkpoint.
func AtomicWrite(filePath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		cleanup()
		return err
	}
	return nil
}

// ReadFileOrEmpty reads a file, returning (nil, nil) if the file doesn't exist.
func ReadFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// WriteJSON atomically writes v as indented JSON.
func WriteJSON(filePath string, v any, perm os.FileMode) error {
	data, err := jsonx.MarshalIndentLine(v)
	if err != nil {
		return err
	}
	return AtomicWrite(filePath, data, perm)
}

// ReadJSON decodes the JSON file at path into v. A missing file reports
// found=false without error.
func ReadJSON(path string, v any) (found bool, err error) {
	data, err := ReadFileOrEmpty(path)
	if err != nil || data == nil {
		return false, err
	}
	if err := jsonx.Unmarshal(data, v); err != nil {
		return true, err
	}
	return true, nil
}

// ResolvePath expands a leading ~ and environment variables. If configured
// is empty, defaultPath is used.
func ResolvePath(configured, defaultPath string) string {
	path := configured
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return path
	}
	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			switch {
			case len(path) == 1:
				path = home
			case path[1] == '/':
				path = filepath.Join(home, path[2:])
			}
		}
	}
	return os.ExpandEnv(path)
}
