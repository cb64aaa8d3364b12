package walker

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/yuya-takeyama/srcsync/internal/ignore"
)

// FileInfo represents a local file or directory below a package root
type FileInfo struct {
	Path    string // Absolute path
	RelPath string // Relative path from the walk root
	IsDir   bool
	Size    int64
	ModTime int64 // Unix timestamp
	Mode    os.FileMode
}

// Walker walks a package directory honoring the project ignore predicate
type Walker struct {
	root    string
	accepts ignore.Predicate
}

// NewWalker creates a new walker rooted at root
func NewWalker(root string, accepts ignore.Predicate) (*Walker, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "get absolute path")
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.Wrap(err, "stat root")
	}
	if !info.IsDir() {
		return nil, errors.Newf("root is not a directory: %s", absRoot)
	}

	if accepts == nil {
		accepts = ignore.AcceptAll{}
	}
	return &Walker{root: absRoot, accepts: accepts}, nil
}

// Root returns the absolute walk root.
func (w *Walker) Root() string {
	return w.root
}

// Walk returns every accepted file and directory below the root, sorted by path.
// The root itself is not included.
func (w *Walker) Walk() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == w.root {
			return nil
		}

		if !w.accepts.Accepts(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			return errors.Wrap(err, "get relative path")
		}

		info, err := d.Info()
		if err != nil {
			return errors.Wrap(err, "get file info")
		}

		files = append(files, FileInfo{
			Path:    path,
			RelPath: relPath,
			IsDir:   d.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
			Mode:    info.Mode(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walk directory")
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ListNames returns the sorted entry names of dir that pass the predicate.
func ListNames(dir string, accepts ignore.Predicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", dir)
	}
	var names []string
	for _, e := range entries {
		if accepts != nil && !accepts.Accepts(filepath.Join(dir, e.Name())) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
