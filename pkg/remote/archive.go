package remote

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxEntrySize bounds a single extracted file.
const maxEntrySize = 512 * 1024 * 1024

// ZipDir packs every regular file below dir, with slash-separated names relative to dir.
func ZipDir(dir string) ([]byte, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", dir)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, path := range paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil, errors.Wrap(err, "get relative path")
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return nil, errors.Wrapf(err, "add %s to archive", rel)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrapf(err, "write %s to archive", rel)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close archive")
	}
	return buf.Bytes(), nil
}

// ZipFiles packs in-memory files keyed by slash-separated name.
func ZipFiles(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			return nil, errors.Wrapf(err, "add %s to archive", n)
		}
		if _, err := w.Write(files[n]); err != nil {
			return nil, errors.Wrapf(err, "write %s to archive", n)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close archive")
	}
	return buf.Bytes(), nil
}

// ReadZip returns the files of an archive keyed by slash-separated name.
func ReadZip(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := cleanEntry(f.Name)
		if err != nil {
			return nil, err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", f.Name)
		}
		body, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", f.Name)
		}
		if len(body) > maxEntrySize {
			return nil, errors.Newf("archive entry %s exceeds %d bytes", f.Name, maxEntrySize)
		}
		out[name] = body
	}
	return out, nil
}

// Unzip extracts an archive below dest.
func Unzip(data []byte, dest string) error {
	files, err := ReadZip(data)
	if err != nil {
		return err
	}
	for name, body := range files {
		path := filepath.Join(dest, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "create directory for %s", name)
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return errors.Wrapf(err, "write %s", name)
		}
	}
	return nil
}

// cleanEntry rejects entry names that would escape the extraction root.
func cleanEntry(name string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", errors.Newf("illegal archive entry %q", name)
	}
	return clean, nil
}
