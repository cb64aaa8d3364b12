// Package atomicfile writes state files so that a crash never leaves a partial file behind.
package atomicfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

const (
	DirPerm  = 0o755
	FilePerm = 0o644
)

// WriteFile atomically replaces filename with data, creating parent directories.
func WriteFile(filename string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), DirPerm); err != nil {
		return errors.Wrapf(err, "create directory for %s", filename)
	}
	if err := writeFile(filename, data, FilePerm); err != nil {
		return errors.Wrapf(err, "write %s", filename)
	}
	return nil
}

// WriteJSON atomically replaces filename with the indented JSON encoding of v.
func WriteJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", filename)
	}
	return WriteFile(filename, append(data, '\n'))
}

// ReadJSON decodes filename into v. It returns false when the file does not exist.
func ReadJSON(filename string, v any) (bool, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "read %s", filename)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, errors.Wrapf(err, "decode %s", filename)
	}
	return true, nil
}
